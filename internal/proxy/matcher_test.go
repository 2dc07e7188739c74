package proxy_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-proxybot/internal/errs"
	"whatsapp-proxybot/internal/member"
	"whatsapp-proxybot/internal/proxy"
	"whatsapp-proxybot/internal/store"
)

const owner = "15550001111@s.whatsapp.net"

// countingStore records how often the matcher lists an owner's members.
type countingStore struct {
	*store.Memory
	lists int
}

func (c *countingStore) ListByOwner(ctx context.Context, ownerID string) ([]member.Member, error) {
	c.lists++
	return c.Memory.ListByOwner(ctx, ownerID)
}

type fixture struct {
	store    *countingStore
	registry *member.Registry
	matcher  *proxy.Matcher
	logs     *bytes.Buffer
}

func newFixture(t *testing.T, members ...member.NewMember) fixture {
	t.Helper()
	st := &countingStore{Memory: store.NewMemory()}
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	reg := member.NewRegistry(st, nil, member.WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	for _, m := range members {
		_, err := reg.Create(context.Background(), owner, m)
		require.NoError(t, err)
	}
	logs := &bytes.Buffer{}
	return fixture{
		store:    st,
		registry: reg,
		matcher:  proxy.NewMatcher(st, zerolog.New(logs)),
		logs:     logs,
	}
}

func TestMatch(t *testing.T) {
	f := newFixture(t,
		member.NewMember{Name: "square", ProxyTag: "[text]"},
		member.NewMember{Name: "odd", ProxyTag: "?text}"},
		member.NewMember{Name: "dash", ProxyTag: "--text"},
		member.NewMember{Name: "star", ProxyTag: "⭐text"},
		member.NewMember{Name: "curly", ProxyTag: "{text}"},
		member.NewMember{Name: "trail", ProxyTag: "text-j"},
	)

	tests := []struct {
		content string
		member  string
		payload string
	}{
		{"[hi]", "square", "hi"},
		{"[[nested]]", "square", "[nested]"},
		{"?hello}", "odd", "hello"},
		{"?.*}", "odd", ".*"},
		{"--dash dash", "dash", "dash dash"},
		{"⭐shine", "star", "shine"},
		{"{x}", "curly", "x"},
		{"bye-j", "trail", "bye"},
	}
	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			res, err := f.matcher.Match(context.Background(), owner, tt.content, false)
			require.NoError(t, err)
			assert.Equal(t, tt.member, res.Member.Name)
			assert.Equal(t, tt.payload, res.Payload)
		})
	}
}

func TestMatchNoMatch(t *testing.T) {
	f := newFixture(t, member.NewMember{Name: "square", ProxyTag: "[text]"})
	for _, content := range []string{"hello", "[hi", "hi]", "[", "]", ""} {
		_, err := f.matcher.Match(context.Background(), owner, content, false)
		assert.ErrorIs(t, err, proxy.ErrNoMatch, content)
	}
}

func TestMatchAffixesDoNotOverlap(t *testing.T) {
	f := newFixture(t, member.NewMember{Name: "bars", ProxyTag: "||text||"})
	_, err := f.matcher.Match(context.Background(), owner, "|||", false)
	assert.ErrorIs(t, err, proxy.ErrNoMatch)

	res, err := f.matcher.Match(context.Background(), owner, "||||", true)
	require.NoError(t, err)
	assert.Equal(t, "", res.Payload)
}

func TestMatchEmptyPayload(t *testing.T) {
	f := newFixture(t, member.NewMember{Name: "square", ProxyTag: "[text]"})

	_, err := f.matcher.Match(context.Background(), owner, "[]", false)
	assert.True(t, errs.Is(err, errs.EmptyProxiedMessage), "got %v", err)

	res, err := f.matcher.Match(context.Background(), owner, "[]", true)
	require.NoError(t, err)
	assert.Equal(t, "square", res.Member.Name)
	assert.Empty(t, res.Payload)
	assert.True(t, res.HasAttachment)
}

func TestMatchOwnerWithoutMembers(t *testing.T) {
	f := newFixture(t)
	_, err := f.matcher.Match(context.Background(), owner, "[hi]", false)
	assert.ErrorIs(t, err, proxy.ErrNoMatch)
	assert.Equal(t, 1, f.store.lists)
}

func TestMatchIgnoresUntaggedMembers(t *testing.T) {
	f := newFixture(t, member.NewMember{Name: "plain"})
	_, err := f.matcher.Match(context.Background(), owner, "plain text", false)
	assert.ErrorIs(t, err, proxy.ErrNoMatch)
}

func TestMatchIsScopedToOwner(t *testing.T) {
	f := newFixture(t, member.NewMember{Name: "square", ProxyTag: "[text]"})
	_, err := f.matcher.Match(context.Background(), "someone-else", "[hi]", false)
	assert.ErrorIs(t, err, proxy.ErrNoMatch)
}

func TestMatchLongestTagWins(t *testing.T) {
	f := newFixture(t,
		member.NewMember{Name: "short", ProxyTag: "[text"},
		member.NewMember{Name: "long", ProxyTag: "[text]"},
	)
	res, err := f.matcher.Match(context.Background(), owner, "[hi]", false)
	require.NoError(t, err)
	assert.Equal(t, "long", res.Member.Name)
	assert.Equal(t, "hi", res.Payload)
	assert.Empty(t, f.logs.String())
}

func TestMatchTieGoesToEarliest(t *testing.T) {
	f := newFixture(t,
		member.NewMember{Name: "first", ProxyTag: "a:text"},
		member.NewMember{Name: "second", ProxyTag: "text:b"},
	)
	res, err := f.matcher.Match(context.Background(), owner, "a:hi:b", false)
	require.NoError(t, err)
	assert.Equal(t, "first", res.Member.Name)
	assert.Equal(t, "hi:b", res.Payload)
	assert.Contains(t, f.logs.String(), `"level":"warn"`)
}

type failingLister struct{}

func (failingLister) ListByOwner(context.Context, string) ([]member.Member, error) {
	return nil, errs.Wrap(errors.New("disk I/O error"), errs.Storage, "list members")
}

func TestMatchPropagatesStorageErrors(t *testing.T) {
	m := proxy.NewMatcher(failingLister{}, zerolog.Nop())
	_, err := m.Match(context.Background(), owner, "[hi]", false)
	assert.True(t, errs.Is(err, errs.Storage))
	assert.NotErrorIs(t, err, proxy.ErrNoMatch)
}
