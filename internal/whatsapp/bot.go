package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"whatsapp-proxybot/internal/command"
	"whatsapp-proxybot/internal/errs"
	"whatsapp-proxybot/internal/proxy"
	"whatsapp-proxybot/internal/substitute"
)

// DefaultHandlerTimeout bounds the work done for one message.
const DefaultHandlerTimeout = 60 * time.Second

// LIDMapper resolves a hidden-user (@lid) JID to the phone-number JID of
// the same account. *whatsmeow.Client exposes one as Store.LIDs.
type LIDMapper interface {
	GetPNForLID(ctx context.Context, lid types.JID) (types.JID, error)
}

// Bot routes incoming WhatsApp messages to commands or to proxying.
type Bot struct {
	client    Client
	lids      LIDMapper
	router    *command.Router
	matcher   *proxy.Matcher
	coord     *substitute.Coordinator
	messenger substitute.Messenger
	timeout   time.Duration
	log       zerolog.Logger

	wg sync.WaitGroup
}

// BotConfig lists the collaborators of a Bot.
type BotConfig struct {
	Client      Client
	LIDs        LIDMapper
	Router      *command.Router
	Matcher     *proxy.Matcher
	Coordinator *substitute.Coordinator
	Messenger   substitute.Messenger
	Timeout     time.Duration
	Log         zerolog.Logger
}

// NewBot creates a Bot. A nil Messenger means a Messenger over Client.
func NewBot(cfg BotConfig) *Bot {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHandlerTimeout
	}
	if cfg.Messenger == nil {
		cfg.Messenger = NewMessenger(cfg.Client, cfg.Log)
	}
	return &Bot{
		client:    cfg.Client,
		lids:      cfg.LIDs,
		router:    cfg.Router,
		matcher:   cfg.Matcher,
		coord:     cfg.Coordinator,
		messenger: cfg.Messenger,
		timeout:   cfg.Timeout,
		log:       cfg.Log,
	}
}

// HandleEvent is registered with whatsmeow's AddEventHandler. Messages are
// handled on their own goroutine so a slow one does not hold up the event
// stream.
func (b *Bot) HandleEvent(evt any) {
	switch v := evt.(type) {
	case *events.Message:
		if skip(v) {
			return
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
			defer cancel()
			b.HandleMessage(ctx, v)
		}()
	case *events.GroupInfo:
		if m, ok := b.messenger.(*Messenger); ok {
			m.Forget(v.JID)
		}
	case *events.Connected:
		b.log.Info().Msg("Connected to WhatsApp")
	case *events.LoggedOut:
		b.log.Warn().Str("reason", v.Reason.String()).Msg("Logged out of WhatsApp")
	}
}

// Wait blocks until every in-flight message has been handled.
func (b *Bot) Wait() {
	b.wg.Wait()
}

func skip(v *events.Message) bool {
	return v.Message == nil || v.Info.IsFromMe || v.Info.Chat == types.StatusBroadcastJID
}

// HandleMessage processes one message synchronously.
func (b *Bot) HandleMessage(ctx context.Context, v *events.Message) {
	text := messageText(v.Message)
	media := attachedMedia(v.Message)
	log := b.log.With().Str("chat", v.Info.Chat.String()).Str("message_id", v.Info.ID).Logger()
	owner := b.ownerID(ctx, log, v.Info)

	if b.router.IsCommand(text) {
		caller := command.Caller{ID: owner, Name: v.Info.PushName}
		reply, err := b.router.Handle(ctx, caller, text, nil)
		if err != nil {
			b.replyError(ctx, log, v, err)
			return
		}
		b.reply(ctx, log, v, RenderReply(reply))
		return
	}
	if text == "" && media == nil {
		return
	}

	res, err := b.matcher.Match(ctx, owner, text, media != nil)
	switch {
	case errors.Is(err, proxy.ErrNoMatch):
		return
	case errs.Is(err, errs.EmptyProxiedMessage):
		log.Debug().Msg("Proxy tag matched an empty message")
		return
	case err != nil:
		b.replyError(ctx, log, v, err)
		return
	}

	origin := substitute.Origin{
		Chat:      v.Info.Chat.String(),
		MessageID: v.Info.ID,
		Sender:    v.Info.Sender.String(),
	}
	if media != nil {
		f, err := b.download(ctx, media)
		if err != nil {
			log.Error().Err(err).Msg("Failed to download attachment")
			b.replyError(ctx, log, v, err)
			return
		}
		origin.Attachments = append(origin.Attachments, f)
	}
	if err := b.coord.Substitute(ctx, res, origin, b.messenger); err != nil {
		b.replyError(ctx, log, v, err)
		return
	}
	log.Debug().Str("member", res.Member.Name).Msg("Message proxied")
}

func (b *Bot) download(ctx context.Context, m *media) (substitute.File, error) {
	data, err := b.client.Download(ctx, m.msg)
	if err != nil {
		return substitute.File{}, fmt.Errorf("failed to download %s: %w", m.name, err)
	}
	return substitute.File{Name: m.name, MimeType: m.mimeType, Data: data}, nil
}

// replyError tells the sender what went wrong. System failures are logged
// and answered with a generic message.
func (b *Bot) replyError(ctx context.Context, log zerolog.Logger, v *events.Message, err error) {
	if !errs.KindOf(err).IsValidation() {
		log.Error().Err(err).Msg("Failed to handle message")
	}
	b.reply(ctx, log, v, errs.UserMessage(err))
}

// reply quotes the original message.
func (b *Bot) reply(ctx context.Context, log zerolog.Logger, v *events.Message, text string) {
	msg := &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
		Text: proto.String(text),
		ContextInfo: &waE2E.ContextInfo{
			StanzaID:      proto.String(v.Info.ID),
			Participant:   proto.String(v.Info.Sender.String()),
			QuotedMessage: v.Message,
		},
	}}
	if _, err := b.client.SendMessage(ctx, v.Info.Chat, msg); err != nil {
		log.Error().Err(err).Msg("Failed to send reply")
	}
}

// ownerID identifies the account behind a message regardless of device. The
// same person is addressed by phone number in some chats and by LID in
// others, so members are always keyed by the phone-number JID. An LID that
// cannot be resolved is used as is.
func (b *Bot) ownerID(ctx context.Context, log zerolog.Logger, info types.MessageInfo) string {
	sender := info.Sender.ToNonAD()
	if sender.Server != types.HiddenUserServer {
		return sender.String()
	}
	if alt := info.SenderAlt.ToNonAD(); alt.Server == types.DefaultUserServer {
		return alt.String()
	}
	if b.lids != nil {
		pn, err := b.lids.GetPNForLID(ctx, sender)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("lid", sender.String()).Msg("Failed to resolve LID to phone number")
		case !pn.IsEmpty():
			return pn.ToNonAD().String()
		}
	}
	return sender.String()
}

// messageText returns the text of a plain, extended or captioned message.
func messageText(m *waE2E.Message) string {
	switch {
	case m.GetConversation() != "":
		return m.GetConversation()
	case m.GetExtendedTextMessage() != nil:
		return m.GetExtendedTextMessage().GetText()
	case m.GetImageMessage() != nil:
		return m.GetImageMessage().GetCaption()
	case m.GetVideoMessage() != nil:
		return m.GetVideoMessage().GetCaption()
	case m.GetDocumentMessage() != nil:
		return m.GetDocumentMessage().GetCaption()
	}
	return ""
}

type media struct {
	msg      whatsmeow.DownloadableMessage
	name     string
	mimeType string
}

// attachedMedia returns the downloadable part of m, or nil.
func attachedMedia(m *waE2E.Message) *media {
	switch {
	case m.GetImageMessage() != nil:
		img := m.GetImageMessage()
		return &media{msg: img, name: "image" + extension(img.GetMimetype()), mimeType: img.GetMimetype()}
	case m.GetVideoMessage() != nil:
		vid := m.GetVideoMessage()
		return &media{msg: vid, name: "video" + extension(vid.GetMimetype()), mimeType: vid.GetMimetype()}
	case m.GetDocumentMessage() != nil:
		doc := m.GetDocumentMessage()
		name := doc.GetFileName()
		if name == "" {
			name = "file" + extension(doc.GetMimetype())
		}
		return &media{msg: doc, name: name, mimeType: doc.GetMimetype()}
	}
	return nil
}

func extension(mimeType string) string {
	_, sub, ok := strings.Cut(strings.SplitN(mimeType, ";", 2)[0], "/")
	if !ok || sub == "" {
		return ""
	}
	if sub == "jpeg" {
		sub = "jpg"
	}
	return "." + strings.TrimSpace(sub)
}

// RenderReply formats a command reply with WhatsApp markup.
func RenderReply(r command.Reply) string {
	if r.Card == nil {
		return r.Text
	}
	var sb strings.Builder
	c := r.Card
	if c.Title != "" {
		fmt.Fprintf(&sb, "*%s*\n", c.Title)
	}
	if c.Description != "" {
		sb.WriteString(c.Description + "\n")
	}
	if len(c.Fields) > 0 {
		sb.WriteString("\n")
	}
	for _, f := range c.Fields {
		fmt.Fprintf(&sb, "*%s:* %s\n", f.Name, f.Value)
	}
	if c.ImageURL != "" {
		sb.WriteString("\n" + c.ImageURL + "\n")
	}
	if c.Footer != "" {
		fmt.Fprintf(&sb, "\n_%s_\n", c.Footer)
	}
	if r.Text != "" {
		sb.WriteString("\n" + r.Text + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
