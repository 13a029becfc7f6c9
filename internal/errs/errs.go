package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind машиночитаемый класс ошибки, уходит в error-событие как есть.
type Kind string

const (
	KindTransport      Kind = "TransportError"
	KindAuth           Kind = "AuthError"
	KindRequestTimeout Kind = "RequestTimeout"
	KindOrderRejected  Kind = "OrderRejected"
	KindOrderUncertain Kind = "OrderUncertain"
	KindStakeCapped    Kind = "StakeCappedWarning"
	KindStakeRounded   Kind = "StakeRoundedWarning"
	KindAPI            Kind = "APIError"
	KindInternal       Kind = "InternalError"
)

// Warning класс предупреждения: работа идёт дальше без вмешательства.
func (k Kind) Warning() bool {
	return k == KindStakeCapped || k == KindStakeRounded
}

// Recoverable можно ли продолжать работу после ошибки такого класса.
func (k Kind) Recoverable() bool {
	return k != KindAuth
}

// Error ошибка с классом и кодом биржи (если есть).
type Error struct {
	Kind    Kind
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Code != "" {
		msg += "(" + e.Code + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// Cause для совместимости с errors.Cause из pkg/errors.
func (e *Error) Cause() error { return e.cause }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithCode ошибка с кодом, который прислала биржа (InvalidToken, InsufficientBalance...).
func WithCode(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap оборачивает err в класс kind. nil остаётся nil.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, cause: errors.WithStack(err)}
}

// KindOf класс ошибки; для чужих ошибок KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is проверка класса через всю цепочку.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// CodeOf код биржи, если есть.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
