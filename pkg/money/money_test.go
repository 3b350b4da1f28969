package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromMajor(t *testing.T) {
	assert.Equal(t, Minor(104800), FromMajor(1048))
}

func TestAddSub(t *testing.T) {
	gross := Minor(104800)
	fee := gross.Fraction(10, 100)

	assert.Equal(t, Minor(10480), fee)
	assert.Equal(t, Minor(94320), gross.Sub(fee))
	assert.Equal(t, Minor(115280), gross.Add(fee))
}

func TestFractionTruncatesTowardZero(t *testing.T) {
	// 8700 * 10 / 100 = 870 exactly, but an amount that doesn't divide
	// evenly must truncate rather than round.
	assert.Equal(t, Minor(33), Minor(333).Fraction(1, 10))
}

func TestFractionZeroDenominator(t *testing.T) {
	assert.Equal(t, Minor(0), Minor(1000).Fraction(1, 0))
}

func TestIsNegative(t *testing.T) {
	assert.True(t, Minor(-1).IsNegative())
	assert.False(t, Minor(0).IsNegative())
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "1048.00", Minor(104800).Display())
	assert.Equal(t, "87.00", Minor(8700).Display())
}
