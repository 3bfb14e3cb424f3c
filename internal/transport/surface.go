package transport

import (
	"context"
	"fmt"
	"html"
	"strings"
)

// ChatSurface shows notifications and opens links in one chat. It satisfies
// notify.Surface and notify.Navigator.
type ChatSurface struct {
	adapter Adapter
	target  ChatTarget
	// route is the callback prefix clicks are routed on, e.g. "notify:open".
	route string
}

func NewChatSurface(a Adapter, target ChatTarget, route string) *ChatSurface {
	return &ChatSurface{adapter: a, target: target, route: route}
}

// Show sends the notification with an "Open" button whose callback data
// carries id.
func (s *ChatSurface) Show(ctx context.Context, id, title, body string) error {
	if s.target.ChatID == 0 {
		return fmt.Errorf("notification chat not configured")
	}
	text := "<b>" + html.EscapeString(title) + "</b>"
	if strings.TrimSpace(body) != "" {
		text += "\n" + html.EscapeString(body)
	}
	_, err := s.adapter.SendText(ctx, s.target, text, &SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
		Buttons:        [][]Button{{{Text: "Open", Data: s.route + ":" + id}}},
	})
	return err
}

// OpenURL answers a click with a message holding a link button. Telegram
// cannot open a page for the user, so this is the closest equivalent.
func (s *ChatSurface) OpenURL(ctx context.Context, url string) error {
	_, err := s.adapter.SendText(ctx, s.target, html.EscapeString(url), &SendOptions{
		ParseMode: "HTML",
		Buttons:   [][]Button{{{Text: "Open page", URL: url}}},
	})
	return err
}
