// Package proxy decides whether a message carries one of its author's proxy
// tags and extracts the text to re-send.
package proxy

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"whatsapp-proxybot/internal/errs"
	"whatsapp-proxybot/internal/member"
)

// ErrNoMatch means no proxy tag matched. It is not a failure.
var ErrNoMatch = errors.New("proxy: no tag matched")

const msgNoMessage = "Proxied message has no content."

// Lister returns an owner's members in creation order.
type Lister interface {
	ListByOwner(ctx context.Context, ownerID string) ([]member.Member, error)
}

// Result is a successful match.
type Result struct {
	Member        member.Member
	Payload       string
	HasAttachment bool
}

// Matcher matches message content against an owner's proxy tags.
type Matcher struct {
	members Lister
	log     zerolog.Logger
}

// NewMatcher creates a Matcher reading members from members.
func NewMatcher(members Lister, log zerolog.Logger) *Matcher {
	return &Matcher{members: members, log: log}
}

type candidate struct {
	member         member.Member
	prefix, suffix string
}

func (c candidate) affixLen() int { return len(c.prefix) + len(c.suffix) }

// Match returns the member whose tag wraps content, along with the content
// stripped of exactly one prefix and one suffix.
//
// When several tags match, the one with the longest prefix+suffix wins and
// ties go to the member created first. It returns ErrNoMatch when nothing
// matches, and an errs.EmptyProxiedMessage error when a tag matches but there
// is neither text nor an attachment to send.
func (m *Matcher) Match(ctx context.Context, ownerID, content string, hasAttachment bool) (Result, error) {
	members, err := m.members.ListByOwner(ctx, ownerID)
	if err != nil {
		return Result{}, err
	}
	tagged := members[:0:0]
	for _, mem := range members {
		if mem.ProxyTag != "" {
			tagged = append(tagged, mem)
		}
	}
	if len(tagged) == 0 {
		return Result{}, ErrNoMatch
	}

	var best *candidate
	ambiguous := false
	for _, mem := range tagged {
		prefix, suffix, err := member.SplitProxyTag(mem.ProxyTag)
		if err != nil {
			m.log.Warn().Err(err).Str("owner", ownerID).Str("member", mem.Name).Msg("Skipping member with malformed proxy tag")
			continue
		}
		c := candidate{member: mem, prefix: prefix, suffix: suffix}
		if !c.matches(content) {
			continue
		}
		switch {
		case best == nil || c.affixLen() > best.affixLen():
			best = &c
			ambiguous = false
		case c.affixLen() == best.affixLen():
			ambiguous = true
		}
	}
	if best == nil {
		return Result{}, ErrNoMatch
	}
	if ambiguous {
		m.log.Warn().Str("owner", ownerID).Str("member", best.member.Name).Str("proxy_tag", best.member.ProxyTag).
			Msg("Several proxy tags of the same length matched, using the earliest member")
	}

	payload := best.strip(content)
	if payload == "" && !hasAttachment {
		return Result{}, errs.New(errs.EmptyProxiedMessage, msgNoMessage)
	}
	return Result{Member: best.member, Payload: payload, HasAttachment: hasAttachment}, nil
}

// matches compares prefix and suffix as plain bytes, and requires them not to
// overlap inside content.
func (c candidate) matches(content string) bool {
	if len(content) < c.affixLen() {
		return false
	}
	return content[:len(c.prefix)] == c.prefix && content[len(content)-len(c.suffix):] == c.suffix
}

// strip removes exactly one leading prefix and one trailing suffix.
func (c candidate) strip(content string) string {
	return content[len(c.prefix) : len(content)-len(c.suffix)]
}
