// Package contests merges the upcoming-contest feeds into the short list
// kept in the trigger store.
package contests

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"cpbot/internal/core"
	"cpbot/internal/eventbus"
	"cpbot/internal/judge"
	"cpbot/internal/triggers"
	logx "cpbot/pkg/logx"
)

// MaxStored is how many contests a refresh keeps.
const MaxStored = 3

type CodeforcesFeed interface {
	Contests(ctx context.Context) ([]judge.CFContest, error)
}

type LeetCodeFeed interface {
	Contests(ctx context.Context) ([]judge.LCContest, error)
}

// Sink stores the merged list.
type Sink interface {
	PutContests(ctx context.Context, list []core.Contest, at time.Time) error
	Contests(ctx context.Context) (triggers.ContestList, error)
}

type Aggregator struct {
	cf      CodeforcesFeed
	lc      LeetCodeFeed
	sink    Sink
	timeout time.Duration
	now     core.Clock
	bus     eventbus.Bus
	log     logx.Logger
}

func New(cf CodeforcesFeed, lc LeetCodeFeed, sink Sink, timeout time.Duration, now core.Clock, bus eventbus.Bus, log logx.Logger) *Aggregator {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Aggregator{cf: cf, lc: lc, sink: sink, timeout: timeout, now: now, bus: bus, log: log.With(logx.String("comp", "contests"))}
}

// Refresh fetches both feeds concurrently and replaces the stored list. A
// failing feed contributes nothing; the other feed's contests are still
// stored. Only the final write can fail Refresh.
func (a *Aggregator) Refresh(ctx context.Context) ([]core.Contest, error) {
	var cfItems, lcItems []core.Contest

	// Feed errors are logged, never returned, so one feed cannot cancel the other.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cfItems = a.fetch(gctx, "codeforces", func(c context.Context) ([]core.Contest, error) {
			list, err := a.cf.Contests(c)
			if err != nil {
				return nil, err
			}
			return FromCodeforces(list), nil
		})
		return nil
	})
	g.Go(func() error {
		lcItems = a.fetch(gctx, "leetcode", func(c context.Context) ([]core.Contest, error) {
			list, err := a.lc.Contests(c)
			if err != nil {
				return nil, err
			}
			return FromLeetCode(list, a.log), nil
		})
		return nil
	})
	_ = g.Wait()

	merged := Merge(append(cfItems, lcItems...), MaxStored)
	now := a.now.Now()
	if err := a.sink.PutContests(ctx, merged, now); err != nil {
		return nil, err
	}
	a.log.Info("contests refreshed",
		logx.Int("codeforces", len(cfItems)),
		logx.Int("leetcode", len(lcItems)),
		logx.Int("stored", len(merged)))
	a.bus.Publish(eventbus.Event{Type: eventbus.ContestsRefreshed, Time: now, Data: merged})
	return merged, nil
}

func (a *Aggregator) fetch(ctx context.Context, feed string, fn func(context.Context) ([]core.Contest, error)) []core.Contest {
	if fn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	items, err := fn(ctx)
	if err != nil {
		a.log.Warn("contest feed failed", logx.String("feed", feed), logx.Err(err))
		return nil
	}
	return items
}

// Contests returns the stored list.
func (a *Aggregator) Contests(ctx context.Context) (triggers.ContestList, error) {
	return a.sink.Contests(ctx)
}

// FromCodeforces keeps contests that have not started (phase BEFORE).
func FromCodeforces(list []judge.CFContest) []core.Contest {
	out := make([]core.Contest, 0, len(list))
	for _, c := range list {
		if c.Phase != "BEFORE" {
			continue
		}
		out = append(out, core.Contest{
			Site:    core.SiteCodeforces,
			Name:    strings.TrimSpace(c.Name),
			StartAt: time.Unix(c.StartTimeSeconds, 0).UTC(),
			URL:     fmt.Sprintf("https://codeforces.com/contests/%d", c.ID),
		})
	}
	return out
}

// FromLeetCode normalizes feed items, skipping those with unparseable start
// times.
func FromLeetCode(list []judge.LCContest, log logx.Logger) []core.Contest {
	out := make([]core.Contest, 0, len(list))
	for _, c := range list {
		start, err := c.Start()
		if err != nil {
			log.Debug("skipping leetcode contest", logx.Err(err))
			continue
		}
		out = append(out, core.Contest{
			Site:    core.SiteLeetCode,
			Name:    strings.TrimSpace(c.Name),
			StartAt: start.UTC(),
			URL:     c.URL,
		})
	}
	return out
}

// Merge dedupes by (site, name) keeping the earliest start, sorts by start
// time and truncates to limit. A limit <= 0 keeps everything.
func Merge(items []core.Contest, limit int) []core.Contest {
	type key struct {
		site core.Site
		name string
	}
	byKey := make(map[key]core.Contest, len(items))
	for _, c := range items {
		if c.Name == "" {
			continue
		}
		k := key{c.Site, c.Name}
		if cur, ok := byKey[k]; !ok || c.StartAt.Before(cur.StartAt) {
			byKey[k] = c
		}
	}
	out := make([]core.Contest, 0, len(byKey))
	for _, c := range byKey {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.StartAt.Equal(b.StartAt) {
			return a.StartAt.Before(b.StartAt)
		}
		if a.Site != b.Site {
			return a.Site < b.Site
		}
		return a.Name < b.Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SitePage is the contests page for a site, used when a contest has no URL.
func SitePage(site core.Site) string {
	if site == core.SiteCodeforces {
		return "https://codeforces.com/contests"
	}
	return "https://leetcode.com/contest/"
}
