package router

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// tokenizeCommandLine splits on whitespace, keeping "double" or 'single'
// quoted runs together.
func tokenizeCommandLine(s string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote rune
		inTok bool
	)
	flush := func() {
		if inTok {
			out = append(out, cur.String())
			cur.Reset()
			inTok = false
		}
	}
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			inTok = true
		case unicode.IsSpace(r):
			flush()
		default:
			cur.WriteRune(r)
			inTok = true
		}
	}
	flush()
	return out
}

// commandWord strips the leading slash and any @botname suffix.
func commandWord(tok string) string {
	w := strings.TrimPrefix(tok, "/")
	if i := strings.IndexByte(w, '@'); i >= 0 {
		w = w[:i]
	}
	return strings.ToLower(w)
}

func newReqID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()[:8]
	}
	s := id.String()
	return s[len(s)-12:]
}
