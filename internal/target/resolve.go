package target

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

var (
	// ErrNoRecipients means resolution produced zero addresses. Dispatch
	// must not be attempted.
	ErrNoRecipients = errors.New("target: no recipients")
	// ErrGroupNotFound is returned by a GroupLookup for an unknown group.
	ErrGroupNotFound = errors.New("target: group not found")
)

// GroupLookup resolves a contact group to its member phone numbers, in the
// group's own order.
type GroupLookup interface {
	GroupMembers(ctx context.Context, groupID string) ([]string, error)
}

type GroupFailure struct {
	Group string
	Err   error
}

// ResolutionError reports every group reference that could not be
// expanded. When it is returned no addresses are, so nothing is sent.
type ResolutionError struct {
	Failures []GroupFailure
	err      error
}

func (e *ResolutionError) add(group string, err error) {
	e.Failures = append(e.Failures, GroupFailure{Group: group, Err: err})
	e.err = multierr.Append(e.err, fmt.Errorf("group %s: %w", group, err))
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("target: %d group(s) could not be resolved: %v", len(e.Failures), e.err)
}

func (e *ResolutionError) Unwrap() []error { return multierr.Errors(e.err) }

// Groups lists the failed group ids in token order.
func (e *ResolutionError) Groups() []string {
	out := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f.Group
	}
	return out
}

type Resolver struct {
	Groups GroupLookup
	// Dedupe drops repeated addresses by normalized form, keeping the first.
	Dedupe bool
}

// Resolve expands l into concrete addresses, preserving token order and
// each group's member order.
//
// A group that exists but has no members contributes nothing. A group that
// cannot be looked up fails the whole resolution with *ResolutionError
// after all tokens were tried. An empty result is ErrNoRecipients.
func (r *Resolver) Resolve(ctx context.Context, l List) ([]string, error) {
	var (
		out  []string
		rerr *ResolutionError
	)
	for _, t := range l {
		switch v := t.(type) {
		case Phone:
			if p := strings.TrimSpace(string(v)); p != "" {
				out = append(out, p)
			}
		case GroupRef:
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			members, err := r.lookup(ctx, string(v))
			if err != nil {
				if rerr == nil {
					rerr = &ResolutionError{}
				}
				rerr.add(string(v), err)
				continue
			}
			out = append(out, members...)
		}
	}
	if rerr != nil {
		return nil, rerr
	}
	if r.Dedupe {
		out = dedupe(out)
	}
	if len(out) == 0 {
		return nil, ErrNoRecipients
	}
	return out, nil
}

func (r *Resolver) lookup(ctx context.Context, id string) ([]string, error) {
	if r.Groups == nil {
		return nil, errors.New("target: no group lookup configured")
	}
	members, err := r.Groups.GroupMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(members))
	for _, m := range members {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out, nil
}

// Normalize keeps only the digits of a phone number so "+1 555-123" and
// "1555123" compare equal.
func Normalize(addr string) string {
	var b strings.Builder
	for _, r := range addr {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return strings.TrimSpace(addr)
	}
	return b.String()
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, a := range in {
		k := Normalize(a)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, a)
	}
	return out
}
