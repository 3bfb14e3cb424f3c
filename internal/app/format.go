package app

import (
	"fmt"
	"html"
	"slices"
	"strings"
	"time"

	"cpbot/internal/core"
	"cpbot/internal/tracker"
	"cpbot/internal/triggers"
)

func formatStats(s tracker.Stats) string {
	var b strings.Builder
	b.WriteString("<b>Progress</b>\n")
	fmt.Fprintf(&b, "Solved: %d / %d tracked\n", s.Solved, s.Tracked)
	sites := make([]core.Site, 0, len(s.PerSite))
	for site := range s.PerSite {
		sites = append(sites, site)
	}
	slices.Sort(sites)
	for _, site := range sites {
		fmt.Fprintf(&b, "  %s: %d solved / %d tracked\n", site.Short(), s.PerSiteSolved[site], s.PerSite[site])
	}
	fmt.Fprintf(&b, "Streak: %d day(s)", s.Streak)
	if s.CodeforcesHandle != "" {
		b.WriteString("\nCodeforces ")
		b.WriteString(html.EscapeString(s.CodeforcesHandle))
		if s.CodeforcesSolved != nil {
			fmt.Fprintf(&b, ": %d solved", *s.CodeforcesSolved)
		} else {
			b.WriteString(": unavailable")
		}
	}
	return b.String()
}

func formatContests(list triggers.ContestList, loc *time.Location) string {
	if len(list.Contests) == 0 {
		return "No upcoming contests."
	}
	var b strings.Builder
	b.WriteString("<b>Upcoming contests</b>\n")
	for i, c := range list.Contests {
		fmt.Fprintf(&b, "%d. [%s] %s\n   %s\n", i+1, c.Site.Short(), html.EscapeString(c.Name), c.StartAt.In(loc).Format("Mon Jan 2 15:04 MST"))
	}
	if !list.RefreshedAt.IsZero() {
		fmt.Fprintf(&b, "<i>updated %s</i>", list.RefreshedAt.In(loc).Format("Jan 2 15:04"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatSettings(s core.Settings) string {
	pref := "Codeforces"
	if s.PreferLeetCode {
		pref = "LeetCode"
	}
	handle := s.CodeforcesHandle
	if handle == "" {
		handle = "-"
	}
	return fmt.Sprintf("<b>Settings</b>\nReminder: %s\nDaily source: %s\nCodeforces handle: %s",
		html.EscapeString(s.ReminderTime), pref, html.EscapeString(handle))
}

// parseSettingsArgs turns "/settings <field> <value>" pairs into a patch.
//
//	time 21:30 | prefer lc|cf | handle <name>|-
func parseSettingsArgs(args []string) (core.SettingsPatch, error) {
	var p core.SettingsPatch
	if len(args)%2 != 0 {
		return p, fmt.Errorf("want field/value pairs, e.g. time 21:30")
	}
	for i := 0; i < len(args); i += 2 {
		field, val := strings.ToLower(args[i]), args[i+1]
		switch field {
		case "time":
			if _, _, err := core.ParseHHMM(val); err != nil {
				return p, err
			}
			p.ReminderTime = &val
		case "prefer":
			site, err := core.ParseSite(val)
			if err != nil {
				return p, err
			}
			lc := site == core.SiteLeetCode
			p.PreferLeetCode = &lc
		case "handle":
			if val == "-" {
				val = ""
			}
			p.CodeforcesHandle = &val
		default:
			return p, fmt.Errorf("unknown setting %q", field)
		}
	}
	return p, nil
}
