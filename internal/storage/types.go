package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound    = errors.New("storage: key not found")
	ErrClosed      = errors.New("storage: closed")
	ErrInvalidKey  = errors.New("storage: invalid key")
	ErrUnknownKind = errors.New("storage: unknown driver")
)

// Scope partitions keys the way the settings/local split of the store does.
type Scope string

const (
	ScopeSettings Scope = "settings"
	ScopeLocal    Scope = "local"
)

func (s Scope) Valid() bool { return s == ScopeSettings || s == ScopeLocal }

// Config configures storage.
type Config struct {
	Driver      string
	Path        string        // file, sqlite
	BusyTimeout time.Duration // sqlite only; 0 means default
	Bucket      string        // gcs
	Prefix      string        // gcs object prefix
}

// Store is the minimal persistence API used by the tracker components.
//
// Get returns ErrNotFound for missing keys. Delete of a missing key is not an
// error. Values are opaque bytes; callers usually go through GetJSON/PutJSON.
type Store interface {
	Get(ctx context.Context, scope Scope, key string) ([]byte, error)
	Put(ctx context.Context, scope Scope, key string, value []byte) error
	Delete(ctx context.Context, scope Scope, key string) error
	Keys(ctx context.Context, scope Scope) ([]string, error)
	Close() error
}

// GetJSON decodes the value at key into v. It reports false when the key is
// missing.
func GetJSON(ctx context.Context, s Store, scope Scope, key string, v any) (bool, error) {
	b, err := s.Get(ctx, scope, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", scope, key, err)
	}
	return true, nil
}

func PutJSON(ctx context.Context, s Store, scope Scope, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", scope, key, err)
	}
	return s.Put(ctx, scope, key, b)
}

func checkKey(scope Scope, key string) error {
	if !scope.Valid() {
		return fmt.Errorf("%w: scope %q", ErrInvalidKey, scope)
	}
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	return nil
}
