// Package whatsapp connects the proxy bot to WhatsApp through whatsmeow.
package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"whatsapp-proxybot/internal/errs"
	"whatsapp-proxybot/internal/substitute"
)

const msgNotInGroup = "You can only proxy in a group chat."

// Client is the part of *whatsmeow.Client the bot uses.
type Client interface {
	SendMessage(ctx context.Context, to types.JID, message *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)
	BuildRevoke(chat, sender types.JID, id types.MessageID) *waE2E.Message
	GetGroupInfo(ctx context.Context, jid types.JID) (*types.GroupInfo, error)
	Upload(ctx context.Context, plaintext []byte, appInfo whatsmeow.MediaType) (whatsmeow.UploadResponse, error)
	Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error)
}

var _ Client = (*whatsmeow.Client)(nil)

// Messenger delivers proxied messages into WhatsApp groups. WhatsApp has no
// per-message sender override, so the member's name is written as a bold
// header above the text.
type Messenger struct {
	client Client
	log    zerolog.Logger

	mu     sync.RWMutex
	groups map[types.JID]substitute.Channel
}

// NewMessenger creates a Messenger sending through client.
func NewMessenger(client Client, log zerolog.Logger) *Messenger {
	return &Messenger{
		client: client,
		log:    log,
		groups: map[types.JID]substitute.Channel{},
	}
}

var _ substitute.Messenger = (*Messenger)(nil)

// GetOrCreateDeliveryChannel returns the group chat as a delivery channel.
// Direct chats are errs.NotInAllowedContext.
func (m *Messenger) GetOrCreateDeliveryChannel(ctx context.Context, chat string) (substitute.Channel, error) {
	ch, ok, err := m.FetchExistingDeliveryChannel(ctx, chat)
	if err != nil || ok {
		return ch, err
	}
	jid, _ := types.ParseJID(chat)
	info, err := m.client.GetGroupInfo(ctx, jid)
	if err != nil {
		return substitute.Channel{}, fmt.Errorf("failed to get group info for %s: %w", jid, err)
	}
	ch = substitute.Channel{ID: jid.String(), Name: info.Name}

	m.mu.Lock()
	m.groups[jid] = ch
	m.mu.Unlock()
	m.log.Debug().Str("chat", ch.ID).Str("group", ch.Name).Msg("Cached delivery channel")
	return ch, nil
}

// FetchExistingDeliveryChannel looks chat up in the cache only.
func (m *Messenger) FetchExistingDeliveryChannel(_ context.Context, chat string) (substitute.Channel, bool, error) {
	jid, err := groupJID(chat)
	if err != nil {
		return substitute.Channel{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.groups[jid]
	return ch, ok, nil
}

// Forget drops a group from the cache, for example after the bot left it.
func (m *Messenger) Forget(chat types.JID) {
	m.mu.Lock()
	delete(m.groups, chat)
	m.mu.Unlock()
}

// SendAsImpersonation posts text and attachments under displayName. Text
// goes first; every attachment is its own message since WhatsApp carries
// one media item per message.
func (m *Messenger) SendAsImpersonation(ctx context.Context, ch substitute.Channel, displayName, avatarURL, text string, attachments []substitute.File) error {
	to, err := groupJID(ch.ID)
	if err != nil {
		return err
	}
	header := "*" + displayName + "*"

	if text != "" {
		if _, err := m.client.SendMessage(ctx, to, textMessage(header, avatarURL, text)); err != nil {
			return fmt.Errorf("failed to send text: %w", err)
		}
	}
	for i, f := range attachments {
		caption := ""
		if text == "" && i == 0 {
			caption = header
		}
		msg, err := m.mediaMessage(ctx, f, caption)
		if err != nil {
			return err
		}
		if _, err := m.client.SendMessage(ctx, to, msg); err != nil {
			return fmt.Errorf("failed to send %s: %w", f.Name, err)
		}
	}
	return nil
}

// DeleteMessage revokes the message. Revoking somebody else's message needs
// the bot to be a group admin.
func (m *Messenger) DeleteMessage(ctx context.Context, chat, sender, messageID string) error {
	chatJID, err := types.ParseJID(chat)
	if err != nil {
		return fmt.Errorf("invalid chat %q: %w", chat, err)
	}
	senderJID, err := types.ParseJID(sender)
	if err != nil {
		return fmt.Errorf("invalid sender %q: %w", sender, err)
	}
	revoke := m.client.BuildRevoke(chatJID, senderJID, types.MessageID(messageID))
	if _, err := m.client.SendMessage(ctx, chatJID, revoke); err != nil {
		return fmt.Errorf("failed to revoke %s: %w", messageID, err)
	}
	return nil
}

func textMessage(header, avatarURL, text string) *waE2E.Message {
	body := header + "\n" + text
	if avatarURL == "" {
		return &waE2E.Message{Conversation: proto.String(body)}
	}
	return &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
		Text:        proto.String(body),
		MatchedText: proto.String(avatarURL),
		Title:       proto.String(strings.Trim(header, "*")),
	}}
}

func (m *Messenger) mediaMessage(ctx context.Context, f substitute.File, caption string) (*waE2E.Message, error) {
	kind := mediaKind(f.MimeType)
	up, err := m.client.Upload(ctx, f.Data, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", f.Name, err)
	}
	var captionText *string
	if caption != "" {
		captionText = proto.String(caption)
	}
	mime := f.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}

	switch kind {
	case whatsmeow.MediaImage:
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       captionText,
			Mimetype:      proto.String(mime),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}, nil
	case whatsmeow.MediaVideo:
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			Caption:       captionText,
			Mimetype:      proto.String(mime),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}, nil
	}
	return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
		Caption:       captionText,
		Title:         proto.String(f.Name),
		FileName:      proto.String(f.Name),
		Mimetype:      proto.String(mime),
		URL:           proto.String(up.URL),
		DirectPath:    proto.String(up.DirectPath),
		MediaKey:      up.MediaKey,
		FileEncSHA256: up.FileEncSHA256,
		FileSHA256:    up.FileSHA256,
		FileLength:    proto.Uint64(up.FileLength),
	}}, nil
}

func mediaKind(mime string) whatsmeow.MediaType {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return whatsmeow.MediaImage
	case strings.HasPrefix(mime, "video/"):
		return whatsmeow.MediaVideo
	}
	return whatsmeow.MediaDocument
}

// groupJID parses chat and requires it to be a group.
func groupJID(chat string) (types.JID, error) {
	jid, err := types.ParseJID(chat)
	if err != nil || jid.Server != types.GroupServer {
		return types.JID{}, errs.New(errs.NotInAllowedContext, msgNotInGroup)
	}
	return jid, nil
}
