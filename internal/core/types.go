// Package core holds the record types shared by the tracker components.
package core

import (
	"fmt"
	"strings"
	"time"
)

// Site identifies a judge.
type Site string

const (
	SiteLeetCode   Site = "leetcode"
	SiteCodeforces Site = "codeforces"
)

// ParseSite accepts the canonical names and the usual short forms.
func ParseSite(s string) (Site, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "leetcode", "lc":
		return SiteLeetCode, nil
	case "codeforces", "cf":
		return SiteCodeforces, nil
	default:
		return "", fmt.Errorf("unknown site %q (want leetcode or codeforces)", s)
	}
}

// Short is the two-letter label used in chat output.
func (s Site) Short() string {
	switch s {
	case SiteLeetCode:
		return "LC"
	case SiteCodeforces:
		return "CF"
	default:
		return string(s)
	}
}

// Contest is an upcoming contest. Identity is (Site, Name).
type Contest struct {
	Site    Site      `json:"site"`
	Name    string    `json:"name"`
	StartAt time.Time `json:"start_at"`
	URL     string    `json:"url,omitempty"`
}

// Trigger is a named due time. Period 0 means one-shot.
type Trigger struct {
	Name   string        `json:"name"`
	DueAt  time.Time     `json:"due_at"`
	Period time.Duration `json:"period,omitempty"`
}

// Settings are the user's reminder preferences.
type Settings struct {
	ReminderTime     string `json:"reminder_time"`
	PreferLeetCode   bool   `json:"prefer_leetcode"`
	CodeforcesHandle string `json:"codeforces_handle,omitempty"`
}

// SettingsPatch changes only the non-nil fields.
type SettingsPatch struct {
	ReminderTime     *string `json:"reminder_time,omitempty"`
	PreferLeetCode   *bool   `json:"prefer_leetcode,omitempty"`
	CodeforcesHandle *string `json:"codeforces_handle,omitempty"`
}

func (p SettingsPatch) Apply(s Settings) Settings {
	if p.ReminderTime != nil {
		s.ReminderTime = strings.TrimSpace(*p.ReminderTime)
	}
	if p.PreferLeetCode != nil {
		s.PreferLeetCode = *p.PreferLeetCode
	}
	if p.CodeforcesHandle != nil {
		s.CodeforcesHandle = strings.TrimSpace(*p.CodeforcesHandle)
	}
	return s
}

func (p SettingsPatch) Empty() bool {
	return p.ReminderTime == nil && p.PreferLeetCode == nil && p.CodeforcesHandle == nil
}
