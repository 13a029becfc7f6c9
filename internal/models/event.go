package models

import "time"

// EventKind тег TradingEvent.
type EventKind string

const (
	EventAuthorized        EventKind = "authorized"
	EventTick              EventKind = "tick"
	EventError             EventKind = "error"
	EventContractPurchased EventKind = "contract_purchased"
	EventContractUpdate    EventKind = "contract_update"
	EventContractFinished  EventKind = "contract_finished"
	EventBalanceUpdate     EventKind = "balance_update"
	EventBotStarted        EventKind = "bot_started"
	EventBotStopped        EventKind = "bot_stopped"
	EventOperationStarted  EventKind = "operation_started"
	EventAccountChanged    EventKind = "account_changed"
)

// TradingEvent то, что получают наблюдатели шины.
// Тип Payload однозначно определяется Kind.
type TradingEvent struct {
	Kind    EventKind
	At      time.Time
	Payload any
}

func NewEvent(kind EventKind, payload any) TradingEvent {
	return TradingEvent{Kind: kind, At: time.Now(), Payload: payload}
}

type AuthorizedPayload struct {
	Account Account
}

type TickPayload struct {
	Tick Tick
}

// ErrorPayload Kind машиночитаемый (errs.Kind), Message для человека.
type ErrorPayload struct {
	Kind    string
	Code    string
	Message string
}

type ContractPayload struct {
	Contract Contract
}

type BalancePayload struct {
	LoginID  string
	Currency string
	Balance  float64
}

type RunPayload struct {
	RunID            string
	Settings         StrategySettings
	CumulativeProfit float64
	Trades           int
	Wins             int
	Losses           int
	Reason           string
}

type OperationPayload struct {
	RunID   string
	Attempt int
	Stake   float64
	Digit   int
}

type AccountChangedPayload struct {
	Previous string
	Current  string
}
