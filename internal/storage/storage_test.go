package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	logx "cpbot/pkg/logx"
)

func openAll(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	fs, err := Open(ctx, Config{Driver: "file", Path: filepath.Join(dir, "state.json")}, logx.Nop())
	require.NoError(t, err)
	sq, err := Open(ctx, Config{Driver: "sqlite", Path: filepath.Join(dir, "state.db")}, logx.Nop())
	require.NoError(t, err)

	stores := map[string]Store{"memory": NewMemory(), "file": fs, "sqlite": sq}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStoreContract(t *testing.T) {
	t.Parallel()

	for name, st := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := st.Get(ctx, ScopeLocal, "missing")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, st.Put(ctx, ScopeSettings, "reminder", []byte(`{"reminder_time":"21:30"}`)))
			require.NoError(t, st.Put(ctx, ScopeLocal, "reminder", []byte(`"other scope"`)))

			got, err := st.Get(ctx, ScopeSettings, "reminder")
			require.NoError(t, err)
			require.JSONEq(t, `{"reminder_time":"21:30"}`, string(got))

			keys, err := st.Keys(ctx, ScopeLocal)
			require.NoError(t, err)
			require.Equal(t, []string{"reminder"}, keys)

			require.NoError(t, st.Delete(ctx, ScopeSettings, "reminder"))
			require.NoError(t, st.Delete(ctx, ScopeSettings, "reminder"))
			_, err = st.Get(ctx, ScopeSettings, "reminder")
			require.ErrorIs(t, err, ErrNotFound)

			err = st.Put(ctx, Scope("sync"), "x", []byte(`1`))
			require.True(t, errors.Is(err, ErrInvalidKey))
		})
	}
}

func TestFileStoreReplaysAfterReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	cfg := Config{Driver: "file", Path: path}

	st, err := Open(ctx, cfg, logx.Nop())
	require.NoError(t, err)
	fs := st.(*fileStore)
	fs.compactEvery = 3

	for i, v := range []string{`1`, `2`, `3`, `4`} {
		require.NoError(t, st.Put(ctx, ScopeLocal, "k"+v, []byte(v)), i)
	}
	require.NoError(t, st.Delete(ctx, ScopeLocal, "k1"))

	// Reopen without Close: state comes from snapshot + journal.
	again, err := Open(ctx, cfg, logx.Nop())
	require.NoError(t, err)
	defer again.Close()

	keys, err := again.Keys(ctx, ScopeLocal)
	require.NoError(t, err)
	require.Equal(t, []string{"k2", "k3", "k4"}, keys)

	require.NoError(t, st.Close())
}

func TestFileStoreReplaysOversizedRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	cfg := Config{Driver: "file", Path: path}

	st, err := Open(ctx, cfg, logx.Nop())
	require.NoError(t, err)

	big := `"` + strings.Repeat("a", 17<<20) + `"`
	require.NoError(t, st.Put(ctx, ScopeLocal, "problems", []byte(big)))
	require.NoError(t, st.Put(ctx, ScopeLocal, "after", []byte(`1`)))

	again, err := Open(ctx, cfg, logx.Nop())
	require.NoError(t, err)
	defer again.Close()

	got, err := again.Get(ctx, ScopeLocal, "problems")
	require.NoError(t, err)
	require.Len(t, got, len(big))
	got, err = again.Get(ctx, ScopeLocal, "after")
	require.NoError(t, err)
	require.Equal(t, "1", string(got))

	require.NoError(t, st.Close())
}

func TestJSONHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemory()

	type rec struct{ N int }
	var out rec
	ok, err := GetJSON(ctx, st, ScopeLocal, "rec", &out)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, PutJSON(ctx, st, ScopeLocal, "rec", rec{N: 7}))
	ok, err = GetJSON(ctx, st, ScopeLocal, "rec", &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 7, out.N)
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{Driver: "etcd"}, logx.Nop())
	require.ErrorIs(t, err, ErrUnknownKind)
}
