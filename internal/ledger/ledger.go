package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cpbot/internal/core"
	"cpbot/internal/eventbus"
	"cpbot/internal/storage"
	"cpbot/internal/triggers"
	logx "cpbot/pkg/logx"
)

var ErrInvalidSlug = errors.New("ledger: slug required")

type Ledger struct {
	st    storage.Store
	locks *triggers.KeyedMutex
	loc   *time.Location
	now   core.Clock
	bus   eventbus.Bus
	log   logx.Logger
}

// New builds a ledger over st. locks must be shared with every other writer
// of the same store.
func New(st storage.Store, locks *triggers.KeyedMutex, loc *time.Location, now core.Clock, bus eventbus.Bus, log logx.Logger) *Ledger {
	if locks == nil {
		locks = triggers.NewKeyedMutex()
	}
	if loc == nil {
		loc = time.Local
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Ledger{st: st, locks: locks, loc: loc, now: now, bus: bus, log: log.With(logx.String("comp", "ledger"))}
}

func (l *Ledger) update(ctx context.Context, fn func(m map[string]ProblemRecord) error) error {
	return triggers.Update(ctx, l.st, l.locks, storage.ScopeLocal, Key, func(m *map[string]ProblemRecord) error {
		if *m == nil {
			*m = map[string]ProblemRecord{}
		}
		return fn(*m)
	})
}

// All returns every record keyed by slug.
func (l *Ledger) All(ctx context.Context) (map[string]ProblemRecord, error) {
	m := map[string]ProblemRecord{}
	if _, err := storage.GetJSON(ctx, l.st, storage.ScopeLocal, Key, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]ProblemRecord{}
	}
	return m, nil
}

func (l *Ledger) Get(ctx context.Context, slug string) (ProblemRecord, bool, error) {
	m, err := l.All(ctx)
	if err != nil {
		return ProblemRecord{}, false, err
	}
	r, ok := m[normSlug(slug)]
	return r, ok, nil
}

// Upsert creates the record if needed and merges patch into it.
func (l *Ledger) Upsert(ctx context.Context, slug string, patch Patch) (ProblemRecord, error) {
	slug = normSlug(slug)
	if slug == "" {
		return ProblemRecord{}, ErrInvalidSlug
	}
	var out ProblemRecord
	err := l.update(ctx, func(m map[string]ProblemRecord) error {
		r := m[slug]
		r.Slug = slug
		r = patch.apply(r)
		m[slug] = r
		out = r
		return nil
	})
	return out, err
}

// MarkSolved appends a solve event and marks the record solved. Calling it
// twice records two events.
func (l *Ledger) MarkSolved(ctx context.Context, slug string, site core.Site, meta map[string]string) (ProblemRecord, error) {
	slug = normSlug(slug)
	if slug == "" {
		return ProblemRecord{}, ErrInvalidSlug
	}
	ev := SolveEvent{At: l.now.Now(), Site: site, Meta: meta}
	var out ProblemRecord
	err := l.update(ctx, func(m map[string]ProblemRecord) error {
		r := m[slug]
		r.Slug = slug
		r.Site = site
		r.Solved = true
		r.Solves = append(r.Solves, ev)
		m[slug] = r
		out = r
		return nil
	})
	if err != nil {
		return ProblemRecord{}, err
	}
	l.log.Info("problem solved", logx.String("slug", slug), logx.String("site", string(site)), logx.Int("solves", len(out.Solves)))
	l.bus.Publish(eventbus.Event{Type: eventbus.ProblemSolved, Time: ev.At, Data: out})
	return out, nil
}

func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	m, err := l.All(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Summarize(m, core.DayOf(l.now.Now(), l.loc), l.loc), nil
}

// Summarize computes Stats for records as seen on today.
func Summarize(records map[string]ProblemRecord, today core.Day, loc *time.Location) Stats {
	st := Stats{PerSite: map[core.Site]int{}, PerSiteSolved: map[core.Site]int{}}
	days := map[core.Day]struct{}{}
	for _, r := range records {
		st.Tracked++
		if r.Solved {
			st.Solved++
		}
		if r.Site != "" {
			st.PerSite[r.Site]++
			if r.Solved {
				st.PerSiteSolved[r.Site]++
			}
		}
		for _, ev := range r.Solves {
			days[core.DayOf(ev.At, loc)] = struct{}{}
		}
	}
	st.Streak = ComputeStreak(days, today)
	return st
}

// ComputeStreak counts consecutive days with a solve, ending today. No solve
// today means no streak.
func ComputeStreak(days map[core.Day]struct{}, today core.Day) int {
	n := 0
	for d := today; ; d = d.AddDays(-1) {
		if _, ok := days[d]; !ok {
			return n
		}
		n++
	}
}

// Export renders the ledger as indented JSON.
func (l *Ledger) Export(ctx context.Context) ([]byte, error) {
	m, err := l.All(ctx)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(m, "", "  ")
}

// Import replaces the whole ledger with data, which must be a JSON object of
// slug to record. It returns the number of records imported.
func (l *Ledger) Import(ctx context.Context, data []byte) (int, error) {
	var in map[string]ProblemRecord
	if err := json.Unmarshal(data, &in); err != nil {
		return 0, fmt.Errorf("import: %w", err)
	}
	if in == nil {
		return 0, errors.New("import: expected a JSON object")
	}
	clean := make(map[string]ProblemRecord, len(in))
	for k, r := range in {
		slug := normSlug(k)
		if slug == "" {
			return 0, fmt.Errorf("import: %w", ErrInvalidSlug)
		}
		r.Slug = slug
		clean[slug] = r
	}

	unlock := l.locks.Lock(string(storage.ScopeLocal) + "/" + Key)
	defer unlock()
	if err := storage.PutJSON(ctx, l.st, storage.ScopeLocal, Key, clean); err != nil {
		return 0, err
	}
	l.log.Info("ledger imported", logx.Int("records", len(clean)))
	return len(clean), nil
}

// Granularity controls how Dedupe compares solve events.
type Granularity int

const (
	// ByDay collapses events of the same problem on the same calendar day.
	ByDay Granularity = iota
	// ByInstant collapses only events with identical timestamps.
	ByInstant
)

// Dedupe returns a copy of records where each problem keeps at most one
// solve event per granularity bucket, the earliest. Records are not
// otherwise changed.
func Dedupe(records map[string]ProblemRecord, g Granularity, loc *time.Location) map[string]ProblemRecord {
	out := make(map[string]ProblemRecord, len(records))
	for slug, r := range records {
		evs := append([]SolveEvent(nil), r.Solves...)
		sort.SliceStable(evs, func(i, j int) bool { return evs[i].At.Before(evs[j].At) })
		seen := map[string]struct{}{}
		kept := evs[:0]
		for _, ev := range evs {
			var k string
			if g == ByInstant {
				k = ev.At.UTC().Format(time.RFC3339Nano)
			} else {
				k = core.DayOf(ev.At, loc).String()
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			kept = append(kept, ev)
		}
		if len(kept) == 0 {
			kept = nil
		}
		r.Solves = kept
		out[slug] = r
	}
	return out
}

func normSlug(s string) string { return strings.TrimSpace(s) }
