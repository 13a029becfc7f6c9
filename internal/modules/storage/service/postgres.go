package service

import (
	"context"

	"digit_bot/internal/models"
	"digit_bot/pkg/db"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const (
	createStateTable = `
CREATE TABLE IF NOT EXISTS bot_state (
    id             SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    active_loginid TEXT        NOT NULL DEFAULT '',
    accounts       JSONB       NOT NULL DEFAULT '[]',
    settings       JSONB       NOT NULL DEFAULT '{}',
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`

	selectState = `SELECT active_loginid, accounts, settings FROM bot_state WHERE id = 1`

	upsertState = `
INSERT INTO bot_state (id, active_loginid, accounts, settings, updated_at)
VALUES (1, $1, $2, $3, now())
ON CONFLICT (id) DO UPDATE
SET active_loginid = EXCLUDED.active_loginid,
    accounts       = EXCLUDED.accounts,
    settings       = EXCLUDED.settings,
    updated_at     = now()`
)

// PgStore состояние одной строкой в bot_state, счета и настройки в jsonb.
type PgStore struct {
	tx db.TxManager
}

func NewPgStore(tx db.TxManager) *PgStore {
	return &PgStore{tx: tx}
}

// Migrate создаёт таблицу, если её нет.
func (s *PgStore) Migrate(ctx context.Context) error {
	_, err := s.tx.Conn().Exec(ctx, createStateTable)
	return errors.Wrap(err, "create bot_state")
}

func (s *PgStore) Load(ctx context.Context) (models.PersistedState, error) {
	st := models.PersistedState{Settings: models.DefaultStrategySettings()}

	var accounts, settings []byte
	err := s.tx.Conn().QueryRow(ctx, selectState).Scan(&st.ActiveLoginID, &accounts, &settings)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return st, errors.Wrap(err, "select bot_state")
	}

	if err := sonic.Unmarshal(accounts, &st.Accounts); err != nil {
		return st, errors.Wrap(err, "decode accounts")
	}
	if len(settings) > 2 {
		if err := sonic.Unmarshal(settings, &st.Settings); err != nil {
			return st, errors.Wrap(err, "decode settings")
		}
	}
	return st, nil
}

func (s *PgStore) Save(ctx context.Context, st models.PersistedState) error {
	accounts, err := sonic.Marshal(st.Accounts)
	if err != nil {
		return errors.Wrap(err, "encode accounts")
	}
	if st.Accounts == nil {
		accounts = []byte("[]")
	}
	settings, err := sonic.Marshal(st.Settings)
	if err != nil {
		return errors.Wrap(err, "encode settings")
	}

	return s.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, upsertState, st.ActiveLoginID, accounts, settings)
		return err
	})
}
