package models

import (
	"net/url"
	"strconv"
	"strings"
)

// Account хранит данные торгового счёта на бирже.
type Account struct {
	LoginID   string  `json:"loginid" yaml:"loginid"`
	Token     string  `json:"token" yaml:"token"`
	Currency  string  `json:"currency" yaml:"currency"`
	IsVirtual bool    `json:"is_virtual" yaml:"is_virtual"`
	Balance   float64 `json:"balance" yaml:"balance"`
}

// redirect отдаёт не больше 10 счетов: acct1..acct10
const maxRedirectAccounts = 10

// AccountsFromRedirect разбирает параметры OAuth-редиректа acct{n}, token{n}, cur{n}.
// Пары без токена пропускаются.
func AccountsFromRedirect(q url.Values) []Account {
	out := make([]Account, 0, 2)
	for n := 1; n <= maxRedirectAccounts; n++ {
		idx := strconv.Itoa(n)
		login := strings.TrimSpace(q.Get("acct" + idx))
		token := strings.TrimSpace(q.Get("token" + idx))
		if login == "" || token == "" {
			continue
		}
		out = append(out, Account{
			LoginID:   login,
			Token:     token,
			Currency:  strings.ToUpper(q.Get("cur" + idx)),
			IsVirtual: IsVirtualLogin(login),
		})
	}
	return out
}

// IsVirtualLogin демо-счета у биржи начинаются с VR (VRTC...)
func IsVirtualLogin(loginID string) bool {
	return strings.HasPrefix(strings.ToUpper(loginID), "VR")
}

// FindAccount ищет счёт по loginid.
func FindAccount(accounts []Account, loginID string) (Account, bool) {
	for _, a := range accounts {
		if a.LoginID == loginID {
			return a, true
		}
	}
	return Account{}, false
}
