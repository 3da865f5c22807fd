package addr

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ZeroAddress 零地址，任何资产操作都禁止以它为目标
const ZeroAddress = "0x0000000000000000000000000000000000000000"

var ErrInvalidAddress = errors.New("地址格式不合法")

// Normalize 校验并规范化地址（EIP-55 大小写校验和形式）
// 所有地址在进入服务层之前都必须经过这里，保证同一地址只有一种存储形态
func Normalize(s string) (string, error) {
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s).Hex(), nil
}

// IsZero 判断是否零地址
func IsZero(s string) bool {
	return common.HexToAddress(s) == (common.Address{})
}

// Equal 比较两个地址是否相同（忽略大小写形态差异）
func Equal(a, b string) bool {
	return common.HexToAddress(a) == common.HexToAddress(b)
}
