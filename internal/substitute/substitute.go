// Package substitute replaces a proxied message with one sent as the member.
package substitute

import (
	"context"
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"whatsapp-proxybot/internal/errs"
	"whatsapp-proxybot/internal/proxy"
)

// DefaultLimit is the longest message, in runes, sent as text.
const DefaultLimit = 2000

// OverflowFileName names the file carrying text over the limit.
const OverflowFileName = "text.txt"

// File is an attachment to forward.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// Channel is where impersonated messages are delivered.
type Channel struct {
	ID   string
	Name string
}

// Messenger is the chat platform.
type Messenger interface {
	SendAsImpersonation(ctx context.Context, ch Channel, displayName, avatarURL, text string, attachments []File) error
	// DeleteMessage removes messageID, which sender posted in chat.
	DeleteMessage(ctx context.Context, chat, sender, messageID string) error
	// GetOrCreateDeliveryChannel fails with errs.NotInAllowedContext where
	// impersonated delivery is not possible.
	GetOrCreateDeliveryChannel(ctx context.Context, chat string) (Channel, error)
	FetchExistingDeliveryChannel(ctx context.Context, chat string) (Channel, bool, error)
}

// Origin is the message being replaced.
type Origin struct {
	Chat        string
	MessageID   string
	Sender      string
	Attachments []File
}

// Plan is what Execute does: send one message, then delete one.
type Plan struct {
	Send   Send
	Delete Delete
}

type Send struct {
	Chat        string
	DisplayName string
	AvatarURL   string
	Text        string
	Attachments []File
}

type Delete struct {
	Chat      string
	Sender    string
	MessageID string
}

// Coordinator builds and applies plans. It keeps no state between calls.
type Coordinator struct {
	limit int
	log   zerolog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLimit sets the text limit in runes.
func WithLimit(n int) Option {
	return func(c *Coordinator) { c.limit = n }
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{limit: DefaultLimit, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	if c.limit <= 0 {
		c.limit = DefaultLimit
	}
	return c
}

// Plan describes how to replace origin with res. Text over the limit is cut
// at the limit and the rest is attached as OverflowFileName.
func (c *Coordinator) Plan(res proxy.Result, origin Origin) (Plan, error) {
	if res.Payload == "" && len(origin.Attachments) == 0 {
		return Plan{}, errs.New(errs.EmptyProxiedMessage, "Proxied message has no content.")
	}
	send := Send{
		Chat:        origin.Chat,
		DisplayName: res.Member.SenderName(),
		AvatarURL:   res.Member.AvatarURL,
		Text:        res.Payload,
		Attachments: slices.Clone(origin.Attachments),
	}
	if utf8.RuneCountInString(res.Payload) > c.limit {
		head, rest := splitAt(res.Payload, c.limit)
		send.Text = head
		send.Attachments = append(send.Attachments, File{
			Name:     OverflowFileName,
			MimeType: "text/plain",
			Data:     []byte(rest),
		})
	}
	return Plan{
		Send:   send,
		Delete: Delete{Chat: origin.Chat, Sender: origin.Sender, MessageID: origin.MessageID},
	}, nil
}

// Execute sends the impersonated message and deletes the original. The
// original is left alone when sending fails.
func (c *Coordinator) Execute(ctx context.Context, p Plan, m Messenger) error {
	ch, err := m.GetOrCreateDeliveryChannel(ctx, p.Send.Chat)
	if err != nil {
		return err
	}
	if err := m.SendAsImpersonation(ctx, ch, p.Send.DisplayName, p.Send.AvatarURL, p.Send.Text, p.Send.Attachments); err != nil {
		return fmt.Errorf("send as %s: %w", p.Send.DisplayName, err)
	}
	if err := m.DeleteMessage(ctx, p.Delete.Chat, p.Delete.Sender, p.Delete.MessageID); err != nil {
		c.log.Warn().Err(err).Str("chat", p.Delete.Chat).Str("message_id", p.Delete.MessageID).Msg("Proxied message sent but original could not be deleted")
		return fmt.Errorf("delete original message: %w", err)
	}
	c.log.Debug().Str("chat", ch.ID).Str("member", p.Send.DisplayName).Msg("Message proxied")
	return nil
}

// Substitute plans and executes in one step.
func (c *Coordinator) Substitute(ctx context.Context, res proxy.Result, origin Origin, m Messenger) error {
	p, err := c.Plan(res, origin)
	if err != nil {
		return err
	}
	return c.Execute(ctx, p, m)
}

// splitAt cuts s after n runes.
func splitAt(s string, n int) (string, string) {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], s[pos:]
		}
		i++
	}
	return s, ""
}
