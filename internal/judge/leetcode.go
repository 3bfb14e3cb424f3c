package judge

import (
	"context"
	"fmt"
	"time"

	logx "cpbot/pkg/logx"
)

// LCContest is one item of the LeetCode contest feed.
type LCContest struct {
	Name      string `json:"name"`
	StartTime string `json:"start_time"`
	URL       string `json:"url"`
}

// Start parses StartTime as RFC 3339.
func (c LCContest) Start() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, c.StartTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("contest %q: bad start_time: %w", c.Name, err)
	}
	return t, nil
}

type LeetCode struct {
	o Options
}

// NewLeetCode reads the feed at o.BaseURL, a JSON array of LCContest.
func NewLeetCode(o Options) *LeetCode {
	o = o.withDefaults()
	o.Log = o.Log.With(logx.String("judge", "leetcode"))
	return &LeetCode{o: o}
}

func (c *LeetCode) Contests(ctx context.Context) ([]LCContest, error) {
	if c.o.BaseURL == "" {
		return nil, fmt.Errorf("leetcode feed url not configured")
	}
	var out []LCContest
	if err := getJSON(ctx, c.o, c.o.BaseURL, &out); err != nil {
		return nil, err
	}
	return out, nil
}
