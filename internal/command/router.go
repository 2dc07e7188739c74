package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"whatsapp-proxybot/internal/errs"
	"whatsapp-proxybot/internal/member"
)

// DefaultPrefix starts every command.
const DefaultPrefix = "pf;"

// maxListed caps the members shown by list.
const maxListed = 25

const (
	msgNoMembers     = "You have no members created."
	msgNoSuchCommand = "No such command exists."
	unset            = "unset"
)

// Members is the part of member.Registry the router needs.
type Members interface {
	Create(ctx context.Context, ownerID string, in member.NewMember) (member.Member, error)
	Remove(ctx context.Context, ownerID, name string) (string, error)
	UpdateField(ctx context.Context, ownerID, name string, field member.Field, value string) (string, error)
	GetByName(ctx context.Context, ownerID, name string) (member.Member, error)
	ListByOwner(ctx context.Context, ownerID string) ([]member.Member, error)
}

// Router executes member commands against a registry.
type Router struct {
	members Members
	prefix  string
	log     zerolog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithPrefix sets the prefix shown in help texts and matched by Handle.
func WithPrefix(prefix string) Option {
	return func(r *Router) { r.prefix = prefix }
}

// WithLogger sets the router logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Router) { r.log = log }
}

// NewRouter creates a Router.
func NewRouter(members Members, opts ...Option) *Router {
	r := &Router{members: members, prefix: DefaultPrefix, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route runs the member command in tokens for caller. tokens[0] is either a
// keyword or a member name; att is the first attachment of the message, if
// any. Validation failures come back as *errs.Error with a message meant for
// the user.
func (r *Router) Route(ctx context.Context, caller Caller, tokens []string, att *Attachment) (Reply, error) {
	if len(tokens) == 0 {
		tokens = []string{""}
	}
	kind := Parse(tokens[0])
	if len(tokens) > 1 && tokens[len(tokens)-1] == "--help" {
		if kind == Unknown {
			kind = Parse(tokens[1])
		}
		return r.help(kind), nil
	}

	switch kind {
	case Help:
		return r.help(Help), nil
	case New:
		if arg(tokens, 1) == "" {
			return r.help(New), nil
		}
		return r.create(ctx, caller, tokens)
	case Remove:
		if arg(tokens, 1) == "" {
			return r.help(Remove), nil
		}
		msg, err := r.members.Remove(ctx, caller.ID, tokens[1])
		return text(msg), err
	case Name, DisplayName, Proxy, Propic:
		// keyword without a member name in front of it
		return r.help(kind), nil
	case List:
		return r.list(ctx, caller)
	}
	return r.routeMember(ctx, caller, tokens, att)
}

// routeMember handles "<name> [subcommand] [value]". The member is looked up
// first, so an unknown name is errs.NotFound whatever follows it. An
// unrecognised subcommand shows the member's details.
func (r *Router) routeMember(ctx context.Context, caller Caller, tokens []string, att *Attachment) (Reply, error) {
	m, err := r.members.GetByName(ctx, caller.ID, tokens[0])
	if err != nil {
		return Reply{}, err
	}
	if len(tokens) < 2 {
		return infoCard(m), nil
	}
	value, hasValue := arg(tokens, 2), len(tokens) > 2

	switch Parse(tokens[1]) {
	case Name:
		if !hasValue {
			return r.help(Name), nil
		}
		return r.update(ctx, caller, m.Name, member.FieldName, value)
	case DisplayName:
		if !hasValue {
			return showField(m, member.FieldDisplayName)
		}
		return r.update(ctx, caller, m.Name, member.FieldDisplayName, value)
	case Proxy:
		if !hasValue {
			return showField(m, member.FieldProxyTag)
		}
		return r.update(ctx, caller, m.Name, member.FieldProxyTag, value)
	case Propic:
		return r.propic(ctx, caller, m.Name, tokens, att)
	}
	return infoCard(m), nil
}

func (r *Router) create(ctx context.Context, caller Caller, tokens []string) (Reply, error) {
	in := member.NewMember{Name: tokens[1], DisplayName: arg(tokens, 2)}
	m, err := r.members.Create(ctx, caller.ID, in)
	if err != nil {
		return Reply{}, err
	}
	msg := "Member was successfully added.\nName: " + m.Name
	if m.DisplayName != "" {
		msg += "\nDisplay name: " + m.DisplayName
	}
	return text(msg), nil
}

func (r *Router) update(ctx context.Context, caller Caller, name string, field member.Field, value string) (Reply, error) {
	if strings.TrimSpace(value) == "" {
		return Reply{}, errs.Newf(errs.BlankValue, "No value was provided for the %s. Please provide a value.", field.Label())
	}
	msg, err := r.members.UpdateField(ctx, caller.ID, name, field, value)
	return text(msg), err
}

// showField answers "<name> displayname" and "<name> proxy" without a value.
func showField(m member.Member, field member.Field) (Reply, error) {
	current := m.DisplayName
	if field == member.FieldProxyTag {
		current = m.ProxyTag
	}
	if current == "" {
		return Reply{}, errs.Newf(errs.BlankValue, "The %s has not been set for %s. Please provide a value.", field.Label(), m.Name)
	}
	return text(fmt.Sprintf("The %s for %s is: %q.", field.Label(), m.Name, current)), nil
}

// propic takes the URL argument, or the attachment when one was sent.
func (r *Router) propic(ctx context.Context, caller Caller, name string, tokens []string, att *Attachment) (Reply, error) {
	value, hasValue := arg(tokens, 2), len(tokens) > 2
	if att != nil && att.URL != "" {
		value, hasValue = att.URL, true
	}
	if !hasValue {
		return r.help(Propic), nil
	}
	reply, err := r.update(ctx, caller, name, member.FieldAvatarURL, value)
	if err != nil {
		return Reply{}, err
	}
	if att != nil && att.URL != "" && !att.ExpiresAt.IsZero() {
		reply.Text += fmt.Sprintf("\n*NOTE:* Because this profile picture was uploaded as an attachment, it will expire on %s. "+
			"To avoid this, upload the picture to another website like https://imgbb.com/ and link to it directly.",
			att.ExpiresAt.Format("Mon Jan 02 2006"))
	}
	return reply, nil
}

func infoCard(m member.Member) Reply {
	return Reply{Card: &Card{
		Title:       m.Name,
		Description: "Details for " + m.Name,
		Fields: []Field{
			{Name: "Display name", Value: orUnset(m.DisplayName)},
			{Name: "Proxy tag", Value: orUnset(m.ProxyTag)},
		},
		ImageURL: m.AvatarURL,
	}}
}

func (r *Router) list(ctx context.Context, caller Caller) (Reply, error) {
	members, err := r.members.ListByOwner(ctx, caller.ID)
	if err != nil {
		return Reply{}, err
	}
	if len(members) == 0 {
		return text(msgNoMembers), nil
	}
	owner := caller.Name
	if owner == "" {
		owner = caller.ID
	}
	title := "Members for " + owner
	if len(members) > maxListed {
		title = fmt.Sprintf("First %d members for %s", maxListed, owner)
		members = members[:maxListed]
	}
	card := &Card{Title: title, Fields: make([]Field, 0, len(members))}
	for _, m := range members {
		card.Fields = append(card.Fields, Field{Name: m.Name, Value: "(Proxy: `" + orUnset(m.ProxyTag) + "`)"})
	}
	return Reply{Card: card}, nil
}

func arg(tokens []string, i int) string {
	if i < len(tokens) {
		return tokens[i]
	}
	return ""
}

func orUnset(s string) string {
	if s == "" {
		return unset
	}
	return s
}
