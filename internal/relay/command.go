package relay

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrParse is returned when an /ignore argument is not a chat id.
var ErrParse = errors.New("relay: invalid chat id")

type commandKind int

const (
	cmdNone commandKind = iota
	cmdStart
	cmdIgnore
	cmdListening
)

func (k commandKind) String() string {
	switch k {
	case cmdStart:
		return "/start"
	case cmdIgnore:
		return "/ignore"
	case cmdListening:
		return "/listening"
	default:
		return ""
	}
}

// parseCommand matches the command words by prefix, so "/startx" is /start.
// A "@botname" mention glued to the command word is dropped before the
// argument is returned.
func parseCommand(text string) (commandKind, string) {
	for _, c := range []struct {
		kind   commandKind
		prefix string
	}{
		{cmdStart, "/start"},
		{cmdIgnore, "/ignore"},
		{cmdListening, "/listening"},
	} {
		rest, ok := strings.CutPrefix(text, c.prefix)
		if !ok {
			continue
		}
		return c.kind, stripMention(rest)
	}
	return cmdNone, ""
}

func stripMention(rest string) string {
	if !strings.HasPrefix(rest, "@") {
		return rest
	}
	if i := strings.IndexAny(rest, " \t\n"); i >= 0 {
		return rest[i:]
	}
	return ""
}

func parseChatID(arg string) (int64, error) {
	s := strings.TrimSpace(arg)
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrParse, s)
	}
	return id, nil
}
