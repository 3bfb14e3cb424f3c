// Package ledger is the append-only record of tracked and solved problems.
package ledger

import (
	"time"

	"cpbot/internal/core"
)

// Key is the store key holding the slug to record map.
const Key = "problems"

// SolveEvent is one observed solve. Events are never edited or removed.
type SolveEvent struct {
	At   time.Time         `json:"at"`
	Site core.Site         `json:"site"`
	Meta map[string]string `json:"meta,omitempty"`
}

type ProblemRecord struct {
	Slug       string       `json:"slug"`
	Site       core.Site    `json:"site,omitempty"`
	Title      string       `json:"title,omitempty"`
	Difficulty string       `json:"difficulty,omitempty"`
	Notes      string       `json:"notes,omitempty"`
	Solved     bool         `json:"solved"`
	Solves     []SolveEvent `json:"solves,omitempty"`
}

// Patch updates descriptive fields. Nil fields are left alone; solve history
// cannot be changed through a patch.
type Patch struct {
	Site       *core.Site
	Title      *string
	Difficulty *string
	Notes      *string
}

func (p Patch) apply(r ProblemRecord) ProblemRecord {
	if p.Site != nil {
		r.Site = *p.Site
	}
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Difficulty != nil {
		r.Difficulty = *p.Difficulty
	}
	if p.Notes != nil {
		r.Notes = *p.Notes
	}
	return r
}

// Stats summarizes the ledger.
type Stats struct {
	Tracked int               `json:"tracked"`
	Solved  int               `json:"solved"`
	// PerSite counts tracked records per site, PerSiteSolved only the
	// solved ones.
	PerSite       map[core.Site]int `json:"per_site"`
	PerSiteSolved map[core.Site]int `json:"per_site_solved"`
	Streak        int               `json:"streak"`
}
