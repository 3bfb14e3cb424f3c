// Package router dispatches chat updates to commands and inline-button
// callbacks on a bounded worker pool.
package router

import (
	"context"
	"time"

	kit "cpbot/internal/transport"
	logx "cpbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackRoute handles callback data of the form "<scope>:<action>[:payload]".
type CallbackRoute struct {
	Scope   string
	Action  string
	Access  Access
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

func (r CallbackRoute) key() string { return r.Scope + ":" + r.Action }

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	Payload string
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends an HTML message to the request's chat.
func (r *Request) Reply(ctx context.Context, html string, buttons ...[]kit.Button) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, html, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true, Buttons: buttons})
	return err
}
