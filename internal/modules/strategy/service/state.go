package service

// RunState состояние торгового прогона.
type RunState int

const (
	StateIdle RunState = iota
	StateArmed
	StatePendingPurchase
	StateOpen
	StateSettled
	StateStopped
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StatePendingPurchase:
		return "pending_purchase"
	case StateOpen:
		return "open"
	case StateSettled:
		return "settled"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Active прогон идёт (ждёт сигнал, покупает или держит позицию).
func (s RunState) Active() bool {
	switch s {
	case StateArmed, StatePendingPurchase, StateOpen, StateSettled:
		return true
	}
	return false
}
