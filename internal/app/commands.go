package app

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"cpbot/internal/core"
	"cpbot/internal/notify"
	"cpbot/internal/reminder"
	"cpbot/internal/tracker"
	tgr "cpbot/internal/transport/telegram/router"
)

const maxImportBytes = 4 << 20

// commands builds the chat command table around t.
func commands(t *tracker.Tracker, loc *time.Location) ([]tgr.Command, []tgr.CallbackRoute) {
	cmds := []tgr.Command{
		{
			Name:        "stats",
			Description: "solved count and streak",
			Usage:       "/stats",
			Handle: func(ctx context.Context, req *tgr.Request) error {
				s, err := t.GetStats(ctx)
				if err != nil {
					return err
				}
				return req.Reply(ctx, formatStats(s))
			},
		},
		{
			Name:        "contests",
			Description: "upcoming contests",
			Usage:       "/contests [refresh]",
			Timeout:     time.Minute,
			Handle: func(ctx context.Context, req *tgr.Request) error {
				if len(req.Args) > 0 && strings.EqualFold(req.Args[0], "refresh") {
					if _, err := t.RefreshContests(ctx); err != nil {
						return err
					}
				}
				list, err := t.GetContests(ctx)
				if err != nil {
					return err
				}
				return req.Reply(ctx, formatContests(list, loc))
			},
		},
		{
			Name:        "settings",
			Description: "show or change reminder settings",
			Usage:       "/settings [time HH:MM] [prefer lc|cf] [handle name|-]",
			Access:      tgr.AccessOwnerOnly,
			Handle: func(ctx context.Context, req *tgr.Request) error {
				if len(req.Args) == 0 {
					s, err := t.Settings(ctx)
					if err != nil {
						return err
					}
					return req.Reply(ctx, formatSettings(s))
				}
				patch, err := parseSettingsArgs(req.Args)
				if err != nil {
					return err
				}
				s, due, err := t.SetSettings(ctx, patch)
				if err != nil {
					return err
				}
				return req.Reply(ctx, formatSettings(s)+"\nNext reminder: "+due.In(loc).Format("Mon Jan 2 15:04"))
			},
		},
		{
			Name:        "remind",
			Description: "countdown before a contest",
			Usage:       "/remind <number|name> | /remind cancel <name>",
			Access:      tgr.AccessOwnerOnly,
			Handle: func(ctx context.Context, req *tgr.Request) error {
				if len(req.Args) == 0 {
					return errors.New("usage: /remind <number|name>")
				}
				if strings.EqualFold(req.Args[0], "cancel") {
					name := strings.Join(req.Args[1:], " ")
					ok, err := t.CancelContestReminder(ctx, name)
					if err != nil {
						return err
					}
					if !ok {
						return req.Reply(ctx, "No reminder for "+html.EscapeString(name))
					}
					return req.Reply(ctx, "Reminder cancelled.")
				}
				c, due, err := t.ScheduleContestReminder(ctx, strings.Join(req.Args, " "))
				switch {
				case errors.Is(err, reminder.ErrAlreadyStarted):
					return req.Reply(ctx, html.EscapeString(c.Name)+" has already started.")
				case err != nil:
					return err
				}
				return req.Reply(ctx, fmt.Sprintf("Reminder for <b>%s</b> at %s.", html.EscapeString(c.Name), due.In(loc).Format("Mon Jan 2 15:04")))
			},
		},
		{
			Name:        "solved",
			Aliases:     []string{"solve"},
			Description: "record a solved problem",
			Usage:       "/solved <slug> [lc|cf]",
			Access:      tgr.AccessOwnerOnly,
			Handle: func(ctx context.Context, req *tgr.Request) error {
				if len(req.Args) == 0 {
					return errors.New("usage: /solved <slug> [lc|cf]")
				}
				site := core.SiteLeetCode
				if len(req.Args) > 1 {
					s, err := core.ParseSite(req.Args[1])
					if err != nil {
						return err
					}
					site = s
				}
				rec, err := t.MarkSolved(ctx, req.Args[0], site, map[string]string{"via": "chat"})
				if err != nil {
					return err
				}
				return req.Reply(ctx, fmt.Sprintf("Recorded %s (%s), solve #%d.", html.EscapeString(rec.Slug), site.Short(), len(rec.Solves)))
			},
		},
		{
			Name:        "notes",
			Description: "attach notes to a problem",
			Usage:       "/notes <slug> <text>",
			Access:      tgr.AccessOwnerOnly,
			Handle: func(ctx context.Context, req *tgr.Request) error {
				if len(req.Args) < 2 {
					return errors.New("usage: /notes <slug> <text>")
				}
				rec, err := t.SetNotes(ctx, req.Args[0], strings.Join(req.Args[1:], " "))
				if err != nil {
					return err
				}
				return req.Reply(ctx, "Notes saved for "+html.EscapeString(rec.Slug)+".")
			},
		},
		{
			Name:        "export",
			Description: "download the problem ledger",
			Usage:       "/export",
			Access:      tgr.AccessOwnerOnly,
			Handle: func(ctx context.Context, req *tgr.Request) error {
				data, err := t.ExportLedger(ctx)
				if err != nil {
					return err
				}
				name := "cpbot-ledger-" + time.Now().In(loc).Format("20060102") + ".json"
				return req.Adapter.SendFile(ctx, req.Chat, name, data, "problem ledger")
			},
		},
		{
			Name:        "import",
			Description: "replace the ledger with an exported file (send it with this caption)",
			Usage:       "/import (as a document caption)",
			Access:      tgr.AccessOwnerOnly,
			Timeout:     time.Minute,
			Handle: func(ctx context.Context, req *tgr.Request) error {
				msg := req.Update.Message
				if msg == nil || msg.Document == nil {
					return errors.New("attach the exported JSON file with /import as its caption")
				}
				data, err := req.Adapter.Download(ctx, msg.Document.FileID, maxImportBytes)
				if err != nil {
					return err
				}
				n, err := t.ImportLedger(ctx, data)
				if err != nil {
					return err
				}
				return req.Reply(ctx, fmt.Sprintf("Imported %d record(s).", n))
			},
		},
	}

	scope, action, _ := strings.Cut(notify.CallbackRoute, ":")
	cbs := []tgr.CallbackRoute{{
		Scope:  scope,
		Action: action,
		Handle: func(ctx context.Context, req *tgr.Request, payload string) error {
			if !t.ResolveClick(ctx, payload) {
				req.Logger.Debug("stale notification click")
			}
			return nil
		},
	}}
	return cmds, cbs
}
