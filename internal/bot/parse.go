package bot

import (
	"fmt"
	"strings"
	"time"
)

const whenLayout = "2006-01-02 15:04"

// ParseCommand splits a message into command name, tokenized args and the
// raw remainder. A trailing @botname on the command word is stripped so
// group-chat addressing works. ok is false for non-command text.
func ParseCommand(text string) (name string, args []string, rest string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, "", false
	}

	word := text[1:]
	if i := strings.IndexAny(word, " \t\n"); i >= 0 {
		rest = strings.TrimSpace(word[i:])
		word = word[:i]
	}
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)
	if word == "" {
		return "", nil, "", false
	}
	return word, strings.Fields(rest), rest, true
}

// ParseWhen interprets a "YYYY-MM-DD" date and "HH:MM" time pair in loc
// and returns the instant in UTC.
func ParseWhen(dateStr, timeStr string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(whenLayout, dateStr+" "+timeStr, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q %q: %w", dateStr, timeStr, err)
	}
	return t.UTC(), nil
}

// FormatWhen renders an instant in loc for user-facing replies.
func FormatWhen(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02 15:04 MST")
}
