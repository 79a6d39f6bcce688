// Package trigger manages the phrases the detector listens for:
// validation, persistence, an in-memory snapshot for the match hot
// path, and change notifications over the event bus.
package trigger

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"voicerelay-server-go/internal/domain/eventbus"
	"voicerelay-server-go/internal/domain/match"
	"voicerelay-server-go/internal/domain/trigger/model"
	"voicerelay-server-go/internal/domain/trigger/store"
	"voicerelay-server-go/internal/platform/errors"
)

type (
	// Trigger re-exports the shared trigger entity for callers.
	Trigger = model.Trigger
	// Logger re-exports the logging interface used across the domain.
	Logger = model.Logger
)

const (
	// DefaultOwner is assigned when a trigger arrives without one.
	DefaultOwner = "assistant"

	defaultMaxPhraseLen    = 200
	defaultCleanupInterval = 10 * time.Minute
	minCleanupInterval     = 30 * time.Second
)

// Seed is a trigger loaded at startup.
type Seed struct {
	Phrase string
	Owner  string
}

// Options encapsulates the dependencies required to construct a Registry.
type Options struct {
	Store           store.Store
	Logger          Logger
	Bus             *eventbus.Bus
	MaxPhraseLength int
	CleanupInterval time.Duration
}

// Registry coordinates trigger storage and keeps a snapshot the
// detector can read without touching the store.
type Registry struct {
	store        store.Store
	logger       Logger
	bus          *eventbus.Bus
	maxPhraseLen int

	mu    sync.RWMutex
	cache []Trigger

	cleanupInterval time.Duration
	cleanupStop     chan struct{}
	cleanupOnce     sync.Once
}

// NewRegistry wires a Registry using the supplied options and loads the
// initial snapshot.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.Store == nil {
		return nil, stderrors.New("trigger registry requires a store")
	}
	if opts.Logger == nil {
		return nil, stderrors.New("trigger registry requires a logger")
	}
	maxLen := opts.MaxPhraseLength
	if maxLen <= 0 {
		maxLen = defaultMaxPhraseLen
	}
	cleanupInterval := opts.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	} else if cleanupInterval < minCleanupInterval {
		opts.Logger.Warn("trigger cleanup interval too small, adjusting to %s", minCleanupInterval)
		cleanupInterval = minCleanupInterval
	}

	r := &Registry{
		store:           opts.Store,
		logger:          opts.Logger,
		bus:             opts.Bus,
		maxPhraseLen:    maxLen,
		cleanupInterval: cleanupInterval,
		cleanupStop:     make(chan struct{}),
	}

	if err := r.Refresh(context.Background()); err != nil {
		return nil, err
	}

	go r.runCleanup()
	return r, nil
}

func (r *Registry) runCleanup() {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx := context.Background()
			if err := r.store.CleanupExpired(ctx); err != nil {
				r.logger.Warn("trigger store cleanup failed: %v", err)
			}
			if err := r.Refresh(ctx); err != nil {
				r.logger.Warn("trigger snapshot refresh failed: %v", err)
			}
		case <-r.cleanupStop:
			return
		}
	}
}

// Add validates and persists a trigger. A zero ttl makes it permanent.
func (r *Registry) Add(ctx context.Context, phrase, owner string, ttl time.Duration) (Trigger, error) {
	phrase = strings.TrimSpace(phrase)
	if err := r.validate(phrase); err != nil {
		return Trigger{}, err
	}
	if owner == "" {
		owner = DefaultOwner
	}

	now := time.Now()
	trig := Trigger{
		ID:        uuid.New().String(),
		Phrase:    phrase,
		Owner:     owner,
		CreatedAt: now,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		trig.ExpiresAt = &exp
	}

	if err := r.store.Put(ctx, trig); err != nil {
		r.logger.Error("failed to store trigger %q: %v", phrase, err)
		return Trigger{}, errors.Wrap(errors.KindStorage, "trigger.add", "trigger store write failed", err)
	}
	r.logger.Info("added trigger %q for owner %s", phrase, owner)

	if err := r.Refresh(ctx); err != nil {
		r.logger.Warn("trigger snapshot refresh failed: %v", err)
	}
	r.publishUpdate()
	return trig, nil
}

// Remove deletes a trigger. Removing an unknown id is a no-op.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if err := r.store.Remove(ctx, id); err != nil {
		return errors.Wrap(errors.KindStorage, "trigger.remove", "trigger store delete failed", err)
	}
	r.logger.Info("removed trigger %s", id)

	if err := r.Refresh(ctx); err != nil {
		r.logger.Warn("trigger snapshot refresh failed: %v", err)
	}
	r.publishUpdate()
	return nil
}

// Get returns one trigger by id.
func (r *Registry) Get(ctx context.Context, id string) (Trigger, error) {
	return r.store.Get(ctx, id)
}

// List returns the active triggers from the store.
func (r *Registry) List(ctx context.Context) ([]Trigger, error) {
	return r.store.List(ctx)
}

// Snapshot returns the cached active triggers. This is the detector's
// per-fragment read path, so it never touches the store.
func (r *Registry) Snapshot() []Trigger {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Trigger, len(r.cache))
	copy(out, r.cache)
	return out
}

// Refresh reloads the snapshot from the store.
func (r *Registry) Refresh(ctx context.Context) error {
	triggers, err := r.store.List(ctx)
	if err != nil {
		return errors.Wrap(errors.KindStorage, "trigger.refresh", "trigger store list failed", err)
	}

	r.mu.Lock()
	r.cache = triggers
	r.mu.Unlock()
	return nil
}

// Seed loads startup triggers, skipping invalid entries and phrases the
// store already has for the same owner.
func (r *Registry) Seed(ctx context.Context, seeds []Seed) error {
	existing := make(map[string]struct{})
	for _, trig := range r.Snapshot() {
		existing[seedKey(trig.Phrase, trig.Owner)] = struct{}{}
	}

	added := 0
	for _, seed := range seeds {
		owner := seed.Owner
		if owner == "" {
			owner = DefaultOwner
		}
		if err := r.validate(seed.Phrase); err != nil {
			r.logger.Warn("skipping seed trigger %q: %v", seed.Phrase, err)
			continue
		}
		if _, ok := existing[seedKey(seed.Phrase, owner)]; ok {
			continue
		}
		if _, err := r.Add(ctx, seed.Phrase, owner, 0); err != nil {
			return err
		}
		existing[seedKey(seed.Phrase, owner)] = struct{}{}
		added++
	}

	if added > 0 {
		r.logger.Info("seeded %d trigger(s)", added)
	}
	return nil
}

// Stats returns debug information from the store backend.
func (r *Registry) Stats(ctx context.Context) (map[string]any, error) {
	return r.store.Stats(ctx)
}

// Close releases underlying resources.
func (r *Registry) Close() error {
	r.cleanupOnce.Do(func() {
		close(r.cleanupStop)
	})

	if err := r.store.Close(context.Background()); err != nil {
		r.logger.Error("failed closing trigger store: %v", err)
		return err
	}
	return nil
}

func (r *Registry) validate(phrase string) error {
	if match.Normalize(phrase) == "" {
		return errors.New(errors.KindConfig, "trigger.validate", "empty trigger phrase")
	}
	if n := utf8.RuneCountInString(phrase); n > r.maxPhraseLen {
		return errors.New(errors.KindConfig, "trigger.validate",
			fmt.Sprintf("trigger phrase is %d runes, limit is %d", n, r.maxPhraseLen))
	}
	return nil
}

func (r *Registry) publishUpdate() {
	if r.bus == nil {
		return
	}
	r.mu.RLock()
	count := len(r.cache)
	r.mu.RUnlock()
	r.bus.Publish(eventbus.EventTriggersUpdated, eventbus.TriggersUpdatedData{Count: count})
}

func seedKey(phrase, owner string) string {
	return match.Normalize(phrase) + "\x00" + owner
}
