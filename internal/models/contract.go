package models

// ContractStatus жизненный цикл купленного контракта.
type ContractStatus string

const (
	ContractPending ContractStatus = "pending"
	ContractOpen    ContractStatus = "open"
	ContractWon     ContractStatus = "won"
	ContractLost    ContractStatus = "lost"
)

// Contract одна позиция. Создаётся только движком стратегии.
type Contract struct {
	ID           int64          `json:"contract_id"`
	ContractType ContractType   `json:"contract_type"`
	Symbol       string         `json:"symbol"`
	Stake        float64        `json:"stake"`
	Prediction   int            `json:"prediction"`
	Status       ContractStatus `json:"status"`
	BuyPrice     float64        `json:"buy_price"`
	Payout       float64        `json:"payout"`
	Profit       float64        `json:"profit"`
}

// Terminal won/lost.
func (c *Contract) Terminal() bool {
	return c.Status == ContractWon || c.Status == ContractLost
}
