package main

import (
	"testing"

	"digit_bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportAccounts(t *testing.T) {
	st := &models.PersistedState{}
	n, err := importAccounts(st, "https://example.com/cb?acct1=CR10&token1=a1&cur1=usd&acct2=VRTC20&token2=b2&cur2=USD")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "CR10", st.ActiveLoginID)
	require.Len(t, st.Accounts, 2)
	assert.True(t, st.Accounts[1].IsVirtual)

	// повторный импорт обновляет токен и не меняет активный счёт
	_, err = importAccounts(st, "https://example.com/cb?acct1=VRTC20&token1=new")
	require.NoError(t, err)
	assert.Equal(t, "CR10", st.ActiveLoginID)
	acc, ok := models.FindAccount(st.Accounts, "VRTC20")
	require.True(t, ok)
	assert.Equal(t, "new", acc.Token)
}

func TestImportAccountsRejectsEmptyRedirect(t *testing.T) {
	_, err := importAccounts(&models.PersistedState{}, "https://example.com/cb?foo=bar")
	assert.Error(t, err)
}

func TestUseAccount(t *testing.T) {
	st := &models.PersistedState{Accounts: []models.Account{{LoginID: "CR1"}, {LoginID: "VRTC2"}}}
	require.NoError(t, useAccount(st, "VRTC2"))
	assert.Equal(t, "VRTC2", st.ActiveLoginID)
	assert.Error(t, useAccount(st, "CR9"))
	assert.Equal(t, "VRTC2", st.ActiveLoginID)
}
