package models

// SessionState состояние соединения с биржей.
type SessionState int

const (
	SessionDisconnected SessionState = iota
	SessionConnecting
	SessionAuthorizing
	SessionAuthorized
	SessionSubscribing
	SessionTrading
	SessionReconnecting
)

func (s SessionState) String() string {
	switch s {
	case SessionDisconnected:
		return "disconnected"
	case SessionConnecting:
		return "connecting"
	case SessionAuthorizing:
		return "authorizing"
	case SessionAuthorized:
		return "authorized"
	case SessionSubscribing:
		return "subscribing"
	case SessionTrading:
		return "trading"
	case SessionReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Live true, пока сессия авторизована и можно слать запросы.
func (s SessionState) Live() bool {
	return s == SessionAuthorized || s == SessionSubscribing || s == SessionTrading
}
