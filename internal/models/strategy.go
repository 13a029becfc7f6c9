package models

import "github.com/pkg/errors"

// ContractType тип цифрового контракта на бирже.
type ContractType string

const (
	ContractDigitMatch ContractType = "DIGITMATCH"
	ContractDigitDiff  ContractType = "DIGITDIFF"
	ContractDigitEven  ContractType = "DIGITEVEN"
	ContractDigitOdd   ContractType = "DIGITODD"
	ContractDigitOver  ContractType = "DIGITOVER"
	ContractDigitUnder ContractType = "DIGITUNDER"
)

// NeedsBarrier для match/diff/over/under биржа ждёт barrier = prediction.
func (c ContractType) NeedsBarrier() bool {
	switch c {
	case ContractDigitMatch, ContractDigitDiff, ContractDigitOver, ContractDigitUnder:
		return true
	}
	return false
}

func (c ContractType) Valid() bool {
	switch c {
	case ContractDigitMatch, ContractDigitDiff, ContractDigitEven,
		ContractDigitOdd, ContractDigitOver, ContractDigitUnder:
		return true
	}
	return false
}

// TriggerMode правило входа по последней цифре.
type TriggerMode string

const (
	TriggerAuto      TriggerMode = ""
	TriggerEveryTick TriggerMode = "every_tick"
	TriggerMatch     TriggerMode = "match"
	TriggerDiffer    TriggerMode = "differ"
	TriggerEven      TriggerMode = "even"
	TriggerOdd       TriggerMode = "odd"
	TriggerOver      TriggerMode = "over"
	TriggerUnder     TriggerMode = "under"
)

// StrategySettings параметры одного торгового прогона.
// Меняются только между прогонами.
type StrategySettings struct {
	Symbol           string       `json:"symbol" yaml:"symbol" mapstructure:"symbol"`
	EntryValue       float64      `json:"entry_value" yaml:"entry_value" mapstructure:"entry_value"`
	ProfitTarget     float64      `json:"profit_target" yaml:"profit_target" mapstructure:"profit_target"`
	LossLimit        float64      `json:"loss_limit" yaml:"loss_limit" mapstructure:"loss_limit"`
	MartingaleFactor float64      `json:"martingale_factor" yaml:"martingale_factor" mapstructure:"martingale_factor"`
	MaxStake         float64      `json:"max_stake" yaml:"max_stake" mapstructure:"max_stake"` // 0 = без лимита
	ContractType     ContractType `json:"contract_type" yaml:"contract_type" mapstructure:"contract_type"`
	Prediction       int          `json:"prediction" yaml:"prediction" mapstructure:"prediction"`
	Duration         int          `json:"duration" yaml:"duration" mapstructure:"duration"`
	DurationUnit     string       `json:"duration_unit" yaml:"duration_unit" mapstructure:"duration_unit"`
	Currency         string       `json:"currency" yaml:"currency" mapstructure:"currency"`
	TriggerMode      TriggerMode  `json:"trigger_mode" yaml:"trigger_mode" mapstructure:"trigger_mode"`
}

func DefaultStrategySettings() StrategySettings {
	return StrategySettings{
		Symbol:           "R_100",
		EntryValue:       0.35,
		ProfitTarget:     10,
		LossLimit:        20,
		MartingaleFactor: 2.1,
		ContractType:     ContractDigitEven,
		Duration:         1,
		DurationUnit:     "t",
		Currency:         "USD",
		TriggerMode:      TriggerAuto,
	}
}

func (s StrategySettings) Validate() error {
	if s.Symbol == "" {
		return errors.Errorf("symbol is required")
	}
	if s.EntryValue <= 0 {
		return errors.Errorf("entry value must be > 0, got %v", s.EntryValue)
	}
	if s.MartingaleFactor < 1 {
		return errors.Errorf("martingale factor must be >= 1, got %v", s.MartingaleFactor)
	}
	if s.ProfitTarget < 0 || s.LossLimit < 0 {
		return errors.Errorf("profit target and loss limit must be >= 0")
	}
	if s.MaxStake < 0 {
		return errors.Errorf("max stake must be >= 0")
	}
	if !s.ContractType.Valid() {
		return errors.Errorf("unsupported contract type %q", s.ContractType)
	}
	if s.ContractType.NeedsBarrier() && (s.Prediction < 0 || s.Prediction > 9) {
		return errors.Errorf("prediction must be in [0,9], got %d", s.Prediction)
	}
	if s.Duration <= 0 {
		return errors.Errorf("duration must be > 0")
	}
	return nil
}

// PersistedState то, что движок читает на старте и пишет при смене счёта/настроек.
type PersistedState struct {
	ActiveLoginID string           `json:"active_loginid" yaml:"active_loginid"`
	Accounts      []Account        `json:"accounts" yaml:"accounts"`
	Settings      StrategySettings `json:"settings" yaml:"settings"`
}

// ActiveAccount активный счёт, если он есть в списке.
func (p *PersistedState) ActiveAccount() (Account, bool) {
	if p == nil || p.ActiveLoginID == "" {
		return Account{}, false
	}
	return FindAccount(p.Accounts, p.ActiveLoginID)
}

// UpsertAccount заменяет счёт с тем же loginid или добавляет новый.
func (p *PersistedState) UpsertAccount(a Account) {
	for i := range p.Accounts {
		if p.Accounts[i].LoginID == a.LoginID {
			p.Accounts[i] = a
			return
		}
	}
	p.Accounts = append(p.Accounts, a)
}
