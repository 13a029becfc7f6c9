package service

import "github.com/shopspring/decimal"

// Martingale последовательность ставок: проигрыш умножает ставку на factor,
// выигрыш возвращает к entry. Ставки округляются до центов.
type Martingale struct {
	entry   decimal.Decimal
	factor  decimal.Decimal
	max     decimal.Decimal // ноль = без ограничения
	current decimal.Decimal
}

// Step результат пересчёта. Raw ставка до округления и лимита.
type Step struct {
	Stake   float64
	Raw     decimal.Decimal
	Capped  bool
	Rounded bool
}

func NewMartingale(entry, factor, max float64) *Martingale {
	m := &Martingale{
		entry:  decimal.NewFromFloat(entry).Round(2),
		factor: decimal.NewFromFloat(factor),
		max:    decimal.NewFromFloat(max).Round(2),
	}
	m.current = m.entry
	return m
}

// Current ставка для следующей покупки.
func (m *Martingale) Current() float64 {
	return m.current.InexactFloat64()
}

// Next пересчёт после расчёта контракта.
func (m *Martingale) Next(won bool) Step {
	var raw decimal.Decimal
	if won {
		raw = m.entry
	} else {
		raw = m.current.Mul(m.factor)
	}
	next := raw.Round(2)
	step := Step{Raw: raw, Rounded: !next.Equal(raw)}
	if m.max.IsPositive() && next.GreaterThan(m.max) {
		next = m.max
		step.Capped = true
	}
	m.current = next
	step.Stake = next.InexactFloat64()
	return step
}

func (m *Martingale) Reset() { m.current = m.entry }
