package notify

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"cpbot/internal/contests"
	"cpbot/internal/core"
	"cpbot/internal/eventbus"
	"cpbot/internal/storage"
	"cpbot/internal/triggers"
	logx "cpbot/pkg/logx"
)

type Config struct {
	TTL time.Duration
	Cap int
	// ContestLead is the countdown used when the contest is no longer
	// stored.
	ContestLead time.Duration
}

type Router struct {
	cfg      Config
	st       storage.Store
	locks    *triggers.KeyedMutex
	surface  Surface
	nav      Navigator
	problems ProblemSource
	contests ContestSource
	now      core.Clock
	pick     func(n int) int
	bus      eventbus.Bus
	log      logx.Logger
}

// Deps are the collaborators of a Router. Problems and Contests may be nil.
type Deps struct {
	Store    storage.Store
	Locks    *triggers.KeyedMutex
	Surface  Surface
	Nav      Navigator
	Problems ProblemSource
	Contests ContestSource
	Now      core.Clock
	Bus      eventbus.Bus
	Log      logx.Logger
}

func New(cfg Config, d Deps) *Router {
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	if cfg.Cap <= 0 {
		cfg.Cap = 500
	}
	if cfg.ContestLead <= 0 {
		cfg.ContestLead = 10 * time.Minute
	}
	if d.Locks == nil {
		d.Locks = triggers.NewKeyedMutex()
	}
	if d.Bus == nil {
		d.Bus = eventbus.Nop{}
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	return &Router{
		cfg:      cfg,
		st:       d.Store,
		locks:    d.Locks,
		surface:  d.Surface,
		nav:      d.Nav,
		problems: d.Problems,
		contests: d.Contests,
		now:      d.Now,
		pick:     rand.IntN,
		bus:      d.Bus,
		log:      d.Log.With(logx.String("comp", "notify")),
	}
}

// SetOutputs swaps the surface and navigator, e.g. after the chat transport
// starts. Call before the first Present.
func (r *Router) SetOutputs(s Surface, n Navigator) {
	r.surface, r.nav = s, n
}

// Present shows content and remembers where its click leads. It returns the
// notification id.
func (r *Router) Present(ctx context.Context, kind Kind, c Content) (string, error) {
	if r.surface == nil {
		return "", errors.New("notify: no surface")
	}
	uid, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("notification id: %w", err)
	}
	id := uid.String()
	b := Binding{ID: id, URL: c.URL, Kind: kind, CreatedAt: r.now.Now()}

	// The binding goes in first so a fast click always finds it.
	if err := r.updateBindings(ctx, func(m map[string]Binding) error {
		m[id] = b
		return nil
	}); err != nil {
		return "", fmt.Errorf("save binding: %w", err)
	}
	if err := r.surface.Show(ctx, id, c.Title, c.Body); err != nil {
		if derr := r.updateBindings(ctx, func(m map[string]Binding) error {
			delete(m, id)
			return nil
		}); derr != nil {
			r.log.Warn("drop binding after failed show", logx.String("id", id), logx.Err(derr))
		}
		return "", fmt.Errorf("show notification: %w", err)
	}

	r.log.Info("notification shown", logx.String("id", id), logx.String("kind", string(kind)), logx.String("title", c.Title))
	r.bus.Publish(eventbus.Event{Type: eventbus.NotificationShown, Time: b.CreatedAt, Data: Shown{ID: id, Kind: kind, Title: c.Title, URL: c.URL}})
	return id, nil
}

// ResolveClick opens the destination bound to id and forgets the binding.
// Unknown or expired ids are ignored. It reports whether a page was opened.
func (r *Router) ResolveClick(ctx context.Context, id string) bool {
	b, err := r.take(ctx, id)
	if err != nil {
		if errors.Is(err, ErrStaleBinding) {
			r.log.Debug("click on unknown notification", logx.String("id", id))
		} else {
			r.log.Warn("resolve click failed", logx.String("id", id), logx.Err(err))
		}
		return false
	}
	if r.nav == nil {
		r.log.Warn("no navigator for click", logx.String("id", id))
		return false
	}
	if err := r.nav.OpenURL(ctx, b.URL); err != nil {
		r.log.Warn("open url failed", logx.String("id", id), logx.String("url", b.URL), logx.Err(err))
		return false
	}
	r.bus.Publish(eventbus.Event{Type: eventbus.NotificationOpen, Data: b})
	return true
}

// DailyContent builds the daily suggestion. With preferLeetCode false it
// links a random Codeforces problem, falling back to the problemset page.
func (r *Router) DailyContent(ctx context.Context, preferLeetCode bool) Content {
	if preferLeetCode {
		return Content{
			Title: "Daily LC Suggestion",
			Body:  "Time to solve one! Open today's problem set.",
			URL:   LeetCodeProblemset,
		}
	}
	fallback := Content{Title: "Daily CF Suggestion", Body: "Open the Codeforces problemset.", URL: CodeforcesProblemset}
	if r.problems == nil {
		return fallback
	}
	list, err := r.problems.Problems(ctx)
	if err != nil || len(list) == 0 {
		if err != nil {
			r.log.Warn("codeforces problemset unavailable", logx.Err(err))
		}
		return fallback
	}
	p := list[r.pick(len(list))]
	return Content{
		Title: "Daily CF Suggestion",
		Body:  fmt.Sprintf("%s (%d%s). Open to solve it.", p.Name, p.ContestID, p.Index),
		URL:   p.URL(),
	}
}

// ContestContent builds the countdown for the named contest. URL and time
// left come from the stored contest list when the contest is still in it.
func (r *Router) ContestContent(ctx context.Context, name string) Content {
	c := Content{
		Title: "Contest starting soon",
		Body:  countdown(name, r.cfg.ContestLead),
		URL:   contests.SitePage(core.SiteCodeforces),
	}
	if r.contests == nil {
		return c
	}
	list, err := r.contests.Contests(ctx)
	if err != nil {
		r.log.Warn("read stored contests", logx.Err(err))
		return c
	}
	for _, sc := range list.Contests {
		if sc.Name != name {
			continue
		}
		c.URL = sc.URL
		if c.URL == "" {
			c.URL = contests.SitePage(sc.Site)
		}
		c.Body = countdown(name, sc.StartAt.Sub(r.now.Now()))
		break
	}
	return c
}

// countdown rounds left up to whole minutes.
func countdown(name string, left time.Duration) string {
	mins := int((left + time.Minute - 1) / time.Minute)
	switch {
	case mins <= 0:
		return name + " is starting now"
	case mins == 1:
		return name + " starts in 1 minute"
	default:
		return fmt.Sprintf("%s starts in %d minutes", name, mins)
	}
}
