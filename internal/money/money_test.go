package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.005", "1.01"},
		{"1.004", "1"},
		{"2.675", "2.68"},
		{"-1.005", "-1.01"},
		{"15", "15"},
	}
	for _, tt := range tests {
		got := Round(MustParse(tt.in))
		assert.True(t, got.Equal(MustParse(tt.want)), "Round(%s)=%s want %s", tt.in, got, tt.want)
	}
}

func TestDiv(t *testing.T) {
	assert.Equal(t, "325.00", Div(MustParse("7800"), FromInt(24)).StringFixed(2))
	assert.Equal(t, "0.67", Div(FromInt(2), FromInt(3)).StringFixed(2))
	assert.Equal(t, "0.3333", DivRate(FromInt(1), FromInt(3)).StringFixed(4))
	assert.Equal(t, "0.0050", DivRate(MustParse("0.01"), FromInt(2)).StringFixed(4))
}

func TestMul(t *testing.T) {
	assert.Equal(t, "15.00", Mul(FromInt(1000), MustParse("0.015")).StringFixed(2))
	assert.Equal(t, "0.10", Mul(MustParse("9.99"), MustParse("0.01")).StringFixed(2))
}

func TestHasScaleAtMost(t *testing.T) {
	assert.True(t, HasScaleAtMost(MustParse("0.0125"), RateScale))
	assert.False(t, HasScaleAtMost(MustParse("0.01255"), RateScale))
	assert.True(t, HasScaleAtMost(MustParse("5.10"), MoneyScale))
}

func TestFormatAndMin(t *testing.T) {
	assert.Equal(t, "5.00", Format(FromInt(5)))
	assert.True(t, Min(FromInt(3), FromInt(7)).Equal(FromInt(3)))
	_, err := Parse("abc")
	assert.Error(t, err)
}
