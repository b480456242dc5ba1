package relay

import (
	"strconv"
	"strings"
)

// forwardText prefixes text with who sent it and from which chat.
//
//	Ada Lovelace (ada) (Chat ID: 42)
//
//	hello
func forwardText(msg Message, text string) string {
	var b strings.Builder
	if u := msg.From; u != nil {
		last := u.LastName
		if last == "" {
			last = "-"
		}
		handle := u.Username
		if handle == "" {
			handle = strconv.FormatInt(u.ID, 10)
		}
		b.WriteString(u.FirstName)
		b.WriteByte(' ')
		b.WriteString(last)
		b.WriteString(" (")
		b.WriteString(handle)
		b.WriteString(") ")
	}
	b.WriteString("(Chat ID: ")
	b.WriteString(strconv.FormatInt(msg.ChatID, 10))
	b.WriteString(")\n\n")
	b.WriteString(text)
	return b.String()
}
