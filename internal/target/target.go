// Package target parses bot target lists and resolves them into the
// concrete phone numbers a dispatch sends to.
package target

import (
	"strings"
)

// GroupPrefix marks a contact-group reference in the persisted token form.
const GroupPrefix = "group:"

// Target is either a Phone or a GroupRef. Text input is parsed once at the
// boundary; nothing downstream looks at string prefixes again.
type Target interface {
	Token() string
	isTarget()
}

type Phone string

type GroupRef string

func (p Phone) Token() string    { return string(p) }
func (g GroupRef) Token() string { return GroupPrefix + string(g) }

func (Phone) isTarget()    {}
func (GroupRef) isTarget() {}

// List is an ordered target list. Duplicates are allowed.
type List []Target

// ParseToken reads one token. Empty tokens and "group:" without an id
// return ok=false.
func ParseToken(tok string) (Target, bool) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return nil, false
	}
	if id, found := strings.CutPrefix(tok, GroupPrefix); found {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, false
		}
		return GroupRef(id), true
	}
	return Phone(tok), true
}

// Parse reads the comma-separated free text of the bot form, for example
// "1234567890, group:G1, 0987654321".
func Parse(text string) List {
	return FromTokens(strings.Split(text, ","))
}

// FromTokens reads the token array stored on a bot record.
func FromTokens(tokens []string) List {
	out := make(List, 0, len(tokens))
	for _, tok := range tokens {
		if t, ok := ParseToken(tok); ok {
			out = append(out, t)
		}
	}
	return out
}

// Tokens is the persisted form of the list.
func (l List) Tokens() []string {
	out := make([]string, len(l))
	for i, t := range l {
		out[i] = t.Token()
	}
	return out
}

// String is the form-field rendering of the list.
func (l List) String() string { return strings.Join(l.Tokens(), ", ") }

// AddGroup appends a group reference, as the quick-select group buttons do.
func (l List) AddGroup(id string) List {
	return append(l, GroupRef(id))
}

func (l List) Groups() []GroupRef {
	var out []GroupRef
	for _, t := range l {
		if g, ok := t.(GroupRef); ok {
			out = append(out, g)
		}
	}
	return out
}
