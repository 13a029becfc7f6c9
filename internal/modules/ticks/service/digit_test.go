package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDigit(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		scale int
		want  int
	}{
		{"two decimals", 1234.56, 2, 6},
		{"float drift", 100.12, 2, 2},
		{"trailing zero", 7654.30, 2, 0},
		{"three decimals", 0.573, 3, 3},
		{"scale zero", 98765.4, 0, 5},
		{"short price padded", 12.5, 3, 0},
		{"r50 style", 245.1234, 4, 4},
		{"negative scale clamps", 19.99, -1, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Digit(tt.price, tt.scale))
		})
	}
}

func TestDigitIsDeterministic(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.Equal(t, 3, Digit(0.1+0.2+1000.0, 1))
	}
}
