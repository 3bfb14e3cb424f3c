// Package triggers is the durable state the reminder components share:
// user settings, armed triggers and the current contest list.
package triggers

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cpbot/internal/core"
	"cpbot/internal/storage"
	logx "cpbot/pkg/logx"
)

// Store keys.
const (
	KeySettings = "reminder"
	KeyTriggers = "triggers"
	KeyContests = "contests"
)

// ContestList is the stored result of the last refresh.
type ContestList struct {
	Contests    []core.Contest `json:"contests"`
	RefreshedAt time.Time      `json:"refreshed_at"`
}

type Store struct {
	st       storage.Store
	locks    *KeyedMutex
	defaults core.Settings
	log      logx.Logger
}

func New(st storage.Store, defaults core.Settings, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		st:       st,
		locks:    NewKeyedMutex(),
		defaults: defaults,
		log:      log.With(logx.String("comp", "triggers")),
	}
}

// Locks exposes the per-key lock table so other components writing through
// the same storage serialize against the same keys.
func (s *Store) Locks() *KeyedMutex { return s.locks }

// Backend returns the underlying storage.
func (s *Store) Backend() storage.Store { return s.st }

// Update loads the JSON value at scope/key into a T, calls fn and writes the
// result back, all under the key's lock. A missing key starts from T's zero
// value. If fn returns an error nothing is written.
func Update[T any](ctx context.Context, st storage.Store, locks *KeyedMutex, scope storage.Scope, key string, fn func(v *T) error) error {
	unlock := locks.Lock(string(scope) + "/" + key)
	defer unlock()

	var v T
	if _, err := storage.GetJSON(ctx, st, scope, key, &v); err != nil {
		return err
	}
	if err := fn(&v); err != nil {
		return err
	}
	return storage.PutJSON(ctx, st, scope, key, v)
}

// Settings returns the stored settings, falling back to the configured
// defaults when nothing has been saved yet.
func (s *Store) Settings(ctx context.Context) (core.Settings, error) {
	out := s.defaults
	found, err := storage.GetJSON(ctx, s.st, storage.ScopeSettings, KeySettings, &out)
	if err != nil {
		return s.defaults, err
	}
	if !found {
		return s.defaults, nil
	}
	if out.ReminderTime == "" {
		out.ReminderTime = s.defaults.ReminderTime
	}
	return out, nil
}

// UpdateSettings applies patch and returns the new settings. An invalid
// reminder time is rejected before anything is written.
func (s *Store) UpdateSettings(ctx context.Context, patch core.SettingsPatch) (core.Settings, error) {
	if patch.ReminderTime != nil {
		if _, _, err := core.ParseHHMM(*patch.ReminderTime); err != nil {
			return core.Settings{}, err
		}
	}
	unlock := s.locks.Lock(string(storage.ScopeSettings) + "/" + KeySettings)
	defer unlock()

	cur, err := s.Settings(ctx)
	if err != nil {
		return core.Settings{}, err
	}
	next := patch.Apply(cur)
	if err := storage.PutJSON(ctx, s.st, storage.ScopeSettings, KeySettings, next); err != nil {
		return core.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return next, nil
}

// SaveTrigger records t so it can be re-armed after a restart.
func (s *Store) SaveTrigger(ctx context.Context, t core.Trigger) error {
	return Update(ctx, s.st, s.locks, storage.ScopeLocal, KeyTriggers, func(m *map[string]core.Trigger) error {
		if *m == nil {
			*m = map[string]core.Trigger{}
		}
		(*m)[t.Name] = t
		return nil
	})
}

func (s *Store) DeleteTrigger(ctx context.Context, name string) error {
	return Update(ctx, s.st, s.locks, storage.ScopeLocal, KeyTriggers, func(m *map[string]core.Trigger) error {
		delete(*m, name)
		return nil
	})
}

// LoadTriggers returns the persisted triggers ordered by due time.
func (s *Store) LoadTriggers(ctx context.Context) ([]core.Trigger, error) {
	var m map[string]core.Trigger
	if _, err := storage.GetJSON(ctx, s.st, storage.ScopeLocal, KeyTriggers, &m); err != nil {
		return nil, err
	}
	out := make([]core.Trigger, 0, len(m))
	for name, t := range m {
		t.Name = name
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

// Contests returns the last stored contest list. Missing means empty.
func (s *Store) Contests(ctx context.Context) (ContestList, error) {
	var out ContestList
	if _, err := storage.GetJSON(ctx, s.st, storage.ScopeLocal, KeyContests, &out); err != nil {
		return ContestList{}, err
	}
	return out, nil
}

// PutContests replaces the stored list wholesale.
func (s *Store) PutContests(ctx context.Context, list []core.Contest, at time.Time) error {
	if list == nil {
		list = []core.Contest{}
	}
	unlock := s.locks.Lock(string(storage.ScopeLocal) + "/" + KeyContests)
	defer unlock()
	if err := storage.PutJSON(ctx, s.st, storage.ScopeLocal, KeyContests, ContestList{Contests: list, RefreshedAt: at}); err != nil {
		return fmt.Errorf("save contests: %w", err)
	}
	s.log.Debug("contests stored", logx.Int("count", len(list)))
	return nil
}
