package service

import "github.com/shopspring/decimal"

// Digit последняя значащая цифра цены: floor(price * 10^scale) mod 10.
// Через decimal, чтобы 100.12 не превратилось в 10011.999...
func Digit(price float64, scale int) int {
	if scale < 0 {
		scale = 0
	}
	n := decimal.NewFromFloat(price).Shift(int32(scale)).Floor().IntPart()
	d := int(n % 10)
	if d < 0 {
		d += 10
	}
	return d
}
