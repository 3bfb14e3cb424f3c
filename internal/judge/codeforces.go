package judge

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	logx "cpbot/pkg/logx"
)

// CFContest is one entry of contest.list.
type CFContest struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	Phase            string `json:"phase"`
	StartTimeSeconds int64  `json:"startTimeSeconds"`
	DurationSeconds  int64  `json:"durationSeconds"`
}

// CFProblem is one entry of problemset.problems.
type CFProblem struct {
	ContestID int      `json:"contestId"`
	Index     string   `json:"index"`
	Name      string   `json:"name"`
	Rating    int      `json:"rating,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// URL is the problem's problemset page.
func (p CFProblem) URL() string {
	return fmt.Sprintf("https://codeforces.com/problemset/problem/%d/%s", p.ContestID, p.Index)
}

type cfSubmission struct {
	Verdict string    `json:"verdict"`
	Problem CFProblem `json:"problem"`
}

type cfEnvelope[T any] struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	Result  T      `json:"result"`
}

type Codeforces struct {
	o Options
}

func NewCodeforces(o Options) *Codeforces {
	o = o.withDefaults()
	if o.BaseURL == "" {
		o.BaseURL = "https://codeforces.com/api"
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	o.Log = o.Log.With(logx.String("judge", "codeforces"))
	return &Codeforces{o: o}
}

func call[T any](ctx context.Context, c *Codeforces, method string, q url.Values) (T, error) {
	var env cfEnvelope[T]
	u := c.o.BaseURL + "/" + method
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	if err := getJSON(ctx, c.o, u, &env); err != nil {
		var zero T
		return zero, err
	}
	if env.Status != "OK" {
		var zero T
		return zero, fmt.Errorf("codeforces %s: status %q: %s", method, env.Status, env.Comment)
	}
	return env.Result, nil
}

// Contests lists all contests, in every phase.
func (c *Codeforces) Contests(ctx context.Context) ([]CFContest, error) {
	return call[[]CFContest](ctx, c, "contest.list", url.Values{"gym": {"false"}})
}

// Problems lists the whole problemset.
func (c *Codeforces) Problems(ctx context.Context) ([]CFProblem, error) {
	res, err := call[struct {
		Problems []CFProblem `json:"problems"`
	}](ctx, c, "problemset.problems", nil)
	if err != nil {
		return nil, err
	}
	if len(res.Problems) == 0 {
		return nil, ErrEmpty
	}
	return res.Problems, nil
}

// SolvedCount counts distinct problems the handle has an accepted
// submission for.
func (c *Codeforces) SolvedCount(ctx context.Context, handle string) (int, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return 0, fmt.Errorf("codeforces handle required")
	}
	subs, err := call[[]cfSubmission](ctx, c, "user.status", url.Values{"handle": {handle}})
	if err != nil {
		return 0, err
	}
	seen := map[string]struct{}{}
	for _, s := range subs {
		if s.Verdict != "OK" {
			continue
		}
		seen[fmt.Sprintf("%d-%s", s.Problem.ContestID, s.Problem.Index)] = struct{}{}
	}
	return len(seen), nil
}
