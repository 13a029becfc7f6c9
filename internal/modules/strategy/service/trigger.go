package service

import (
	"digit_bot/internal/models"

	"github.com/pkg/errors"
)

// Trigger условие входа по последней цифре.
type Trigger func(digit int) bool

// NewTrigger по режиму из настроек. Пустой режим выводится из типа контракта.
func NewTrigger(s models.StrategySettings) (Trigger, error) {
	mode := s.TriggerMode
	if mode == models.TriggerAuto {
		mode = autoMode(s.ContractType)
	}
	p := s.Prediction

	switch mode {
	case models.TriggerEveryTick:
		return func(int) bool { return true }, nil
	case models.TriggerMatch:
		return func(d int) bool { return d == p }, nil
	case models.TriggerDiffer:
		return func(d int) bool { return d != p }, nil
	case models.TriggerEven:
		return func(d int) bool { return d%2 == 0 }, nil
	case models.TriggerOdd:
		return func(d int) bool { return d%2 == 1 }, nil
	case models.TriggerOver:
		return func(d int) bool { return d > p }, nil
	case models.TriggerUnder:
		return func(d int) bool { return d < p }, nil
	}
	return nil, errors.Errorf("unknown trigger mode %q", s.TriggerMode)
}

func autoMode(c models.ContractType) models.TriggerMode {
	switch c {
	case models.ContractDigitMatch:
		return models.TriggerMatch
	case models.ContractDigitDiff:
		return models.TriggerDiffer
	case models.ContractDigitEven:
		return models.TriggerEven
	case models.ContractDigitOdd:
		return models.TriggerOdd
	case models.ContractDigitOver:
		return models.TriggerOver
	case models.ContractDigitUnder:
		return models.TriggerUnder
	}
	return models.TriggerEveryTick
}
