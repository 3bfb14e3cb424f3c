package router

import (
	"html"
	"strings"

	kit "cpbot/internal/transport"
)

func escape(s string) string { return html.EscapeString(s) }

// helpText renders help in Telegram HTML.
func (m *CommandManager) helpText(args []string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(args) > 0 {
		c, ok := m.cmds[commandWord(args[0])]
		if !ok {
			return "❓ <b>Unknown command</b>\nSend <code>/help</code> for the list."
		}
		lines := []string{"<b>/" + escape(c.Name) + "</b>"}
		if c.Description != "" {
			lines = append(lines, escape(c.Description))
		}
		if c.Usage != "" {
			lines = append(lines, "Usage: <code>"+escape(c.Usage)+"</code>")
		}
		if len(c.Aliases) > 0 {
			lines = append(lines, "Aliases: "+escape(strings.Join(c.Aliases, ", ")))
		}
		return strings.Join(lines, "\n")
	}

	lines := []string{"📚 <b>Commands</b>", ""}
	for _, c := range m.ordered {
		line := "/" + escape(c.Name)
		if c.Description != "" {
			line += ": " + escape(c.Description)
		}
		if c.Access == AccessOwnerOnly {
			line += " 🔒"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// sanitizeCommand converts a name into a Telegram bot command, which must
// match [a-z0-9_]{1,32}.
func sanitizeCommand(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == '-' || r == ' ':
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	return out
}

func buildMenu(cmds []Command) []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		name := sanitizeCommand(c.Name)
		if name == "" {
			continue
		}
		desc := strings.TrimSpace(strings.ReplaceAll(c.Description, "\n", " "))
		if desc == "" {
			desc = name
		}
		if len(desc) > 256 {
			desc = desc[:256]
		}
		out = append(out, kit.BotCommand{Command: name, Description: desc})
		if len(out) == 100 {
			break
		}
	}
	return out
}
