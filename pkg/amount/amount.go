package amount

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// ============================================================================
// 受检无符号大数运算
// ============================================================================
//
// 代币数量和价值金额统一使用 256 位无符号整数，对外（API、数据库）以十进制
// 字符串传递。所有运算溢出/下溢时返回错误而不是静默回绕 —— 余额守恒依赖于此。
//
// ============================================================================

var (
	ErrInvalidAmount = errors.New("金额格式不合法")
	ErrOverflow      = errors.New("运算溢出")
	ErrUnderflow     = errors.New("运算下溢")
	ErrDivideByZero  = errors.New("除数为零")
)

// Parse 解析十进制字符串金额
func Parse(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, ErrInvalidAmount
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return v, nil
}

// MustParse 解析内部常量，失败即 panic（仅用于配置和测试数据）
func MustParse(s string) *uint256.Int {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Format 格式化为十进制字符串
func Format(v *uint256.Int) string {
	return v.Dec()
}

// Zero 零值
func Zero() *uint256.Int {
	return uint256.NewInt(0)
}

// Add 受检加法
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return sum, nil
}

// Sub 受检减法
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	diff, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrUnderflow
	}
	return diff, nil
}

// Mul 受检乘法
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return product, nil
}

// Div 受检除法（除零报错）
func Div(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivideByZero
	}
	return new(uint256.Int).Div(a, b), nil
}

// Gt 判断 a > b
func Gt(a, b *uint256.Int) bool {
	return a.Gt(b)
}

// Lt 判断 a < b
func Lt(a, b *uint256.Int) bool {
	return a.Lt(b)
}
