// Package membership holds the id set mirrored by the listener and ignore stores.
package membership

import (
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Set is a set of chat/user ids. The zero value is not usable; use New.
type Set map[int64]struct{}

func New(ids ...int64) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s Set) Contains(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s Set) Add(id int64)    { s[id] = struct{}{} }
func (s Set) Remove(id int64) { delete(s, id) }
func (s Set) Len() int        { return len(s) }

// Toggle removes id when present and inserts it otherwise.
// It reports whether id is a member afterwards.
func (s Set) Toggle(id int64) (added bool) {
	if s.Contains(id) {
		delete(s, id)
		return false
	}
	s[id] = struct{}{}
	return true
}

// IDs returns the members in ascending order.
func (s Set) IDs() []int64 {
	ids := lo.Keys(s)
	slices.Sort(ids)
	return ids
}

func (s Set) Clone() Set {
	out := make(Set, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for id := range s {
		if !o.Contains(id) {
			return false
		}
	}
	return true
}

// Parse decodes the line-oriented text form. It never fails:
// blank and non-numeric lines are skipped.
func Parse(text string) Set {
	s := New()
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			continue
		}
		s[id] = struct{}{}
	}
	return s
}

// Encode renders one id per line, each newline-terminated.
func (s Set) Encode() string {
	var b strings.Builder
	for _, id := range s.IDs() {
		b.WriteString(strconv.FormatInt(id, 10))
		b.WriteByte('\n')
	}
	return b.String()
}

// Codec is the dualstore text contract for Set.
type Codec struct{}

func (Codec) Decode(text string) Set { return Parse(text) }
func (Codec) Encode(s Set) string    { return s.Encode() }
func (Codec) Clone(s Set) Set {
	if s == nil {
		return New()
	}
	return s.Clone()
}
func (Codec) Empty() Set { return New() }
