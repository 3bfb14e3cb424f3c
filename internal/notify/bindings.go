package notify

import (
	"context"
	"sort"
	"time"

	"cpbot/internal/storage"
	"cpbot/internal/triggers"
)

// BindingsKey is the store key of the id to binding map.
const BindingsKey = "bindings"

func (r *Router) updateBindings(ctx context.Context, fn func(m map[string]Binding) error) error {
	return triggers.Update(ctx, r.st, r.locks, storage.ScopeLocal, BindingsKey, func(m *map[string]Binding) error {
		if *m == nil {
			*m = map[string]Binding{}
		}
		if err := fn(*m); err != nil {
			return err
		}
		prune(*m, r.now.Now(), r.cfg.TTL, r.cfg.Cap)
		return nil
	})
}

// prune drops bindings older than ttl, then the oldest ones beyond limit.
func prune(m map[string]Binding, now time.Time, ttl time.Duration, limit int) int {
	dropped := 0
	for id, b := range m {
		if ttl > 0 && now.Sub(b.CreatedAt) > ttl {
			delete(m, id)
			dropped++
		}
	}
	if limit <= 0 || len(m) <= limit {
		return dropped
	}
	list := make([]Binding, 0, len(m))
	for _, b := range m {
		list = append(list, b)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	for _, b := range list[:len(list)-limit] {
		delete(m, b.ID)
		dropped++
	}
	return dropped
}

// take removes and returns the binding for id.
func (r *Router) take(ctx context.Context, id string) (Binding, error) {
	var out Binding
	err := r.updateBindings(ctx, func(m map[string]Binding) error {
		b, ok := m[id]
		if !ok {
			return ErrStaleBinding
		}
		delete(m, id)
		out = b
		return nil
	})
	if err != nil {
		return Binding{}, err
	}
	if r.cfg.TTL > 0 && r.now.Now().Sub(out.CreatedAt) > r.cfg.TTL {
		return Binding{}, ErrStaleBinding
	}
	return out, nil
}

// Pending lists live bindings, newest first.
func (r *Router) Pending(ctx context.Context) ([]Binding, error) {
	var m map[string]Binding
	if _, err := storage.GetJSON(ctx, r.st, storage.ScopeLocal, BindingsKey, &m); err != nil {
		return nil, err
	}
	out := make([]Binding, 0, len(m))
	for _, b := range m {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
