package amount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Valid(t *testing.T) {
	v, err := Parse("12345")
	require.NoError(t, err)
	assert.Equal(t, "12345", Format(v))
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse("")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestParse_NotDecimal(t *testing.T) {
	for _, s := range []string{"abc", "-1", "1.5", "0x10", "1 0"} {
		_, err := Parse(s)
		assert.ErrorIs(t, err, ErrInvalidAmount, s)
	}
}

func TestParse_MaxUint256(t *testing.T) {
	// 2^256 - 1
	max := "115792089237316195423570985008687907853269984665640564039457584007913129639935"
	v, err := Parse(max)
	require.NoError(t, err)
	assert.Equal(t, max, Format(v))

	// 2^256 越界
	_, err = Parse("115792089237316195423570985008687907853269984665640564039457584007913129639936")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestAdd_Overflow(t *testing.T) {
	max := MustParse("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	_, err := Add(max, MustParse("1"))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestSub_Underflow(t *testing.T) {
	_, err := Sub(MustParse("1"), MustParse("2"))
	assert.ErrorIs(t, err, ErrUnderflow)
}

func TestSub_ToZero(t *testing.T) {
	v, err := Sub(MustParse("7"), MustParse("7"))
	require.NoError(t, err)
	assert.True(t, v.IsZero())
}

func TestMul_Overflow(t *testing.T) {
	max := MustParse("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	_, err := Mul(max, MustParse("2"))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMul_Rate(t *testing.T) {
	tokens, err := Mul(MustParse("3"), MustParse("1000"))
	require.NoError(t, err)
	assert.Equal(t, "3000", Format(tokens))
}

func TestDiv_ByZero(t *testing.T) {
	_, err := Div(MustParse("10"), Zero())
	assert.ErrorIs(t, err, ErrDivideByZero)
}

func TestGtLt(t *testing.T) {
	assert.True(t, Gt(MustParse("2"), MustParse("1")))
	assert.False(t, Gt(MustParse("1"), MustParse("1")))
	assert.True(t, Lt(MustParse("1"), MustParse("2")))
	assert.False(t, Lt(MustParse("2"), MustParse("2")))
}
