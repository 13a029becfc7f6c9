package service

import (
	"context"

	"digit_bot/internal/models"
)

// Store сохранённые счета, активный счёт и настройки стратегии.
type Store interface {
	Load(ctx context.Context) (models.PersistedState, error)
	Save(ctx context.Context, st models.PersistedState) error
}
