package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Checksum(t *testing.T) {
	// EIP-55 校验和形式唯一
	got, err := Normalize("0xd8da6bf26964af9d7eed9e03e53415d37aa96045")
	require.NoError(t, err)
	assert.Equal(t, "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045", got)

	// 大写输入收敛到同一形态
	got2, err := Normalize("0xD8DA6BF26964AF9D7EED9E03E53415D37AA96045")
	require.NoError(t, err)
	assert.Equal(t, got, got2)
}

func TestNormalize_Invalid(t *testing.T) {
	for _, s := range []string{"", "0x123", "not-an-address", "0xzz00000000000000000000000000000000000000"} {
		_, err := Normalize(s)
		assert.ErrorIs(t, err, ErrInvalidAddress, s)
	}
}

func TestIsZero(t *testing.T) {
	assert.True(t, IsZero(ZeroAddress))
	assert.True(t, IsZero("0x0"))
	assert.False(t, IsZero("0x0000000000000000000000000000000000000001"))
}

func TestEqual_IgnoresCase(t *testing.T) {
	assert.True(t, Equal(
		"0xd8da6bf26964af9d7eed9e03e53415d37aa96045",
		"0xD8DA6BF26964AF9D7EED9E03E53415D37AA96045",
	))
	assert.False(t, Equal(
		"0x0000000000000000000000000000000000000001",
		"0x0000000000000000000000000000000000000002",
	))
}
