package target

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGroups struct {
	members map[string][]string
	fail    map[string]error
	calls   []string
}

func (f *fakeGroups) GroupMembers(ctx context.Context, id string) ([]string, error) {
	f.calls = append(f.calls, id)
	if err, ok := f.fail[id]; ok {
		return nil, err
	}
	m, ok := f.members[id]
	if !ok {
		return nil, ErrGroupNotFound
	}
	return m, nil
}

func TestParse(t *testing.T) {
	l := Parse(" 1234567890, group:G1 ,, 0987654321, ,group: ,")
	assert.Equal(t, List{Phone("1234567890"), GroupRef("G1"), Phone("0987654321")}, l)
	assert.Equal(t, []string{"1234567890", "group:G1", "0987654321"}, l.Tokens())
	assert.Equal(t, "1234567890, group:G1, 0987654321", l.String())
	assert.Equal(t, []GroupRef{"G1"}, l.Groups())
}

func TestFromTokens_RoundTrip(t *testing.T) {
	tokens := []string{"15551230000", "group:abc-123", "15551230000"}
	l := FromTokens(tokens)
	require.Len(t, l, 3)
	assert.Equal(t, tokens, l.Tokens())
	assert.Equal(t, l, Parse(l.String()))
}

func TestAddGroup(t *testing.T) {
	l := Parse("111").AddGroup("G7")
	assert.Equal(t, "111, group:G7", l.String())
	assert.Equal(t, "group:G7", Parse("").AddGroup("G7").String())
}

func TestResolve_MixedTargets(t *testing.T) {
	g := &fakeGroups{members: map[string][]string{
		"G1": {"15559990001", "15559990002"},
	}}
	r := &Resolver{Groups: g}

	got, err := r.Resolve(context.Background(), FromTokens([]string{"15551230000", "group:G1"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"15551230000", "15559990001", "15559990002"}, got)
	assert.Equal(t, []string{"G1"}, g.calls)
}

func TestResolve_OrderAndDuplicatesKept(t *testing.T) {
	g := &fakeGroups{members: map[string][]string{
		"A": {"2", " 3 ", ""},
		"B": {"1"},
	}}
	r := &Resolver{Groups: g}

	got, err := r.Resolve(context.Background(), Parse("group:B, 1, group:A, group:B"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "1", "2", "3", "1"}, got)
	assert.Equal(t, []string{"B", "A", "B"}, g.calls, "one lookup per group token")
}

func TestResolve_Dedupe(t *testing.T) {
	g := &fakeGroups{members: map[string][]string{"A": {"+1 555-0001", "15550002"}}}
	r := &Resolver{Groups: g, Dedupe: true}

	got, err := r.Resolve(context.Background(), Parse("15550001, group:A, 15550002"))
	require.NoError(t, err)
	assert.Equal(t, []string{"15550001", "15550002"}, got)
}

func TestResolve_Empty(t *testing.T) {
	g := &fakeGroups{members: map[string][]string{"EMPTY": {}}}
	r := &Resolver{Groups: g}

	_, err := r.Resolve(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoRecipients)

	_, err = r.Resolve(context.Background(), Parse("group:EMPTY"))
	assert.ErrorIs(t, err, ErrNoRecipients)

	_, err = r.Resolve(context.Background(), Parse(" , ,"))
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestResolve_EmptyGroupIsNotAnError(t *testing.T) {
	g := &fakeGroups{members: map[string][]string{"EMPTY": nil}}
	r := &Resolver{Groups: g}

	got, err := r.Resolve(context.Background(), Parse("group:EMPTY, 42"))
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, got)
}

func TestResolve_GroupFailuresAbort(t *testing.T) {
	boom := errors.New("backend unavailable")
	g := &fakeGroups{
		members: map[string][]string{"OK": {"1"}},
		fail:    map[string]error{"DOWN": boom},
	}
	r := &Resolver{Groups: g}

	got, err := r.Resolve(context.Background(), Parse("5, group:MISSING, group:OK, group:DOWN"))
	require.Error(t, err)
	assert.Nil(t, got)

	var rerr *ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, []string{"MISSING", "DOWN"}, rerr.Groups())
	assert.ErrorIs(t, err, ErrGroupNotFound)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNoRecipients)
	assert.Equal(t, []string{"MISSING", "OK", "DOWN"}, g.calls, "all tokens tried before failing")
}

func TestResolve_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Resolver{Groups: &fakeGroups{}}

	_, err := r.Resolve(ctx, Parse("group:G1"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "15551230000", Normalize("+1 (555) 123-0000"))
	assert.Equal(t, "abc", Normalize(" abc "))
}
