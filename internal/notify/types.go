// Package notify turns fired triggers into chat notifications and resolves
// notification clicks back to the page they point at.
package notify

import (
	"context"
	"errors"
	"time"

	"cpbot/internal/judge"
	"cpbot/internal/triggers"
)

// Destinations.
const (
	LeetCodeProblemset   = "https://leetcode.com/problemset/all/?difficulty=EASY%2CMEDIUM%2CHARD"
	CodeforcesProblemset = "https://codeforces.com/problemset"
)

// CallbackRoute is the single callback route clicks arrive on.
const CallbackRoute = "notify:open"

// ErrStaleBinding means a click referenced an expired or already used
// notification.
var ErrStaleBinding = errors.New("notify: stale binding")

// Surface shows a notification with a clickable action carrying id.
type Surface interface {
	Show(ctx context.Context, id, title, body string) error
}

// Navigator opens a URL for the user.
type Navigator interface {
	OpenURL(ctx context.Context, url string) error
}

type ProblemSource interface {
	Problems(ctx context.Context) ([]judge.CFProblem, error)
}

type ContestSource interface {
	Contests(ctx context.Context) (triggers.ContestList, error)
}

type Kind string

const (
	KindDaily   Kind = "daily"
	KindContest Kind = "contest"
)

// Content is what a notification says and where its click leads.
type Content struct {
	Title string
	Body  string
	URL   string
}

// Binding maps a shown notification to its destination.
type Binding struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Kind      Kind      `json:"kind,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Shown is published on the bus after a notification is displayed.
type Shown struct {
	ID    string
	Kind  Kind
	Title string
	URL   string
}
