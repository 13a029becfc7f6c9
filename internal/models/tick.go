package models

import "time"

// Tick одно обновление цены инструмента. После создания не меняется.
type Tick struct {
	Symbol string
	Price  float64
	Digit  int
	Epoch  int64
}

// Time epoch биржи в секундах.
func (t Tick) Time() time.Time { return time.Unix(t.Epoch, 0) }

// DigitStats снимок статистики по цифрам одного символа.
type DigitStats struct {
	Symbol      string      `json:"symbol"`
	Capacity    int         `json:"capacity"`
	Digits      []int       `json:"digits"`
	Frequencies [10]int     `json:"frequencies"`
	Percentages [10]float64 `json:"percentages"`
	LastPrice   float64     `json:"last_price"`
}
