package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voicerelay-server-go/internal/domain/trigger/model"
	"voicerelay-server-go/internal/platform/storage"

	"gorm.io/gorm"
)

type sqliteStore struct {
	db *gorm.DB
}

// NewSQLite builds a SQLite-backed trigger store.
func NewSQLite(db *gorm.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Put(ctx context.Context, trig model.Trigger) error {
	if trig.ID == "" {
		return fmt.Errorf("trigger id required")
	}
	if trig.CreatedAt.IsZero() {
		trig.CreatedAt = time.Now()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("trigger_id = ?", trig.ID).Delete(&storage.TriggerRecord{}).Error; err != nil {
			return err
		}
		record := &storage.TriggerRecord{
			TriggerID: trig.ID,
			Phrase:    trig.Phrase,
			Owner:     trig.Owner,
			CreatedAt: trig.CreatedAt,
			ExpiresAt: trig.ExpiresAt,
		}
		return tx.Create(record).Error
	})
}

func (s *sqliteStore) Get(ctx context.Context, id string) (model.Trigger, error) {
	trig, err := s.fetch(ctx, id)
	if err != nil {
		return model.Trigger{}, err
	}
	if !trig.Active(time.Now()) {
		return model.Trigger{}, fmt.Errorf("trigger expired: %s", id)
	}
	return trig, nil
}

func (s *sqliteStore) Remove(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("trigger_id = ?", id).Delete(&storage.TriggerRecord{}).Error
}

func (s *sqliteStore) List(ctx context.Context) ([]model.Trigger, error) {
	var records []storage.TriggerRecord
	if err := s.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]model.Trigger, 0, len(records))
	for _, r := range records {
		trig := recordToTrigger(r)
		if trig.Active(now) {
			out = append(out, trig)
		}
	}
	return out, nil
}

func (s *sqliteStore) CleanupExpired(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", time.Now()).
		Delete(&storage.TriggerRecord{}).
		Error
}

func (s *sqliteStore) Stats(ctx context.Context) (map[string]any, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&storage.TriggerRecord{}).Count(&total).Error; err != nil {
		return nil, err
	}
	return map[string]any{
		"type":  "sqlite",
		"total": total,
	}, nil
}

func (s *sqliteStore) Close(context.Context) error {
	return nil
}

func (s *sqliteStore) fetch(ctx context.Context, id string) (model.Trigger, error) {
	var record storage.TriggerRecord
	err := s.db.WithContext(ctx).Where("trigger_id = ?", id).First(&record).Error
	if errorsIsNotFound(err) {
		return model.Trigger{}, fmt.Errorf("trigger not found: %s", id)
	}
	if err != nil {
		return model.Trigger{}, err
	}
	return recordToTrigger(record), nil
}

func recordToTrigger(r storage.TriggerRecord) model.Trigger {
	return model.Trigger{
		ID:        r.TriggerID,
		Phrase:    r.Phrase,
		Owner:     r.Owner,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}
}

func errorsIsNotFound(err error) bool {
	return err != nil && errors.Is(err, gorm.ErrRecordNotFound)
}
