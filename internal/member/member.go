// Package member owns personas ("members"): their validation rules and the
// registry that creates, updates and removes them for an owner.
package member

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"whatsapp-proxybot/internal/errs"
)

// Marker separates a proxy tag's prefix from its suffix.
const Marker = "text"

// MaxDisplayNameLength is counted in runes after trimming.
const MaxDisplayNameLength = 32

const (
	msgNoMember           = "No such member was found."
	msgMemberExists       = "A member with that name already exists. Please pick a unique name."
	msgDisplayNameTooLong = "The display name is too long. Please limit it to 32 characters or less."
	msgProxyExists        = "A duplicate proxy already exists for one of your members. Please pick a new one, or change the old one first."
	msgNoTextForProxy     = "You need the word 'text' for the bot to detect proxy tags with.\nCorrect usage examples: `pf;member jane proxy J:text`, `pf;member jane proxy [text]`"
	msgNoProxyWrapper     = "You need at least one proxy tag surrounding 'text', either before or after.\nCorrect usage examples: `pf;member jane proxy J:text`, `pf;member jane proxy [text]`"
	msgTooManyMarkers     = "The word 'text' can only appear once in a proxy tag."
	msgNoName             = "No member name was provided."
)

// Member is a persona an owner can proxy messages through. Empty optional
// fields mean unset.
type Member struct {
	ID          string
	OwnerID     string
	Name        string
	DisplayName string
	ProxyTag    string
	AvatarURL   string
	CreatedAt   time.Time
}

// SenderName is the name shown when proxying.
func (m Member) SenderName() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Name
}

// NewMember holds the inputs for creating a member.
type NewMember struct {
	Name        string
	DisplayName string
	ProxyTag    string
	AvatarURL   string
}

// Field names a mutable member column.
type Field string

const (
	FieldName        Field = "name"
	FieldDisplayName Field = "displayName"
	FieldProxyTag    Field = "proxyTag"
	FieldAvatarURL   Field = "avatarUrl"
)

// Label is the human name of the field.
func (f Field) Label() string {
	switch f {
	case FieldName:
		return "name"
	case FieldDisplayName:
		return "display name"
	case FieldProxyTag:
		return "proxy tag"
	case FieldAvatarURL:
		return "profile picture"
	}
	return string(f)
}

// Valid reports whether f is one of the known fields.
func (f Field) Valid() bool {
	switch f {
	case FieldName, FieldDisplayName, FieldProxyTag, FieldAvatarURL:
		return true
	}
	return false
}

// Store is the storage collaborator. Lookups by name are case-insensitive.
// Missing rows are reported as errs.NotFound, unique violations as
// errs.NameTaken or errs.ProxyTagTaken and anything else as errs.Storage.
type Store interface {
	CreateMember(ctx context.Context, m Member) error
	FindByName(ctx context.Context, ownerID, name string) (Member, error)
	FindByProxyTag(ctx context.Context, ownerID, tag string) (Member, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Member, error)
	UpdateField(ctx context.Context, ownerID, name string, field Field, value string) error
	DeleteByName(ctx context.Context, ownerID, name string) error
}

// ImageValidator checks that an avatar URL points at an acceptable image.
// Failures are errs.InvalidImage.
type ImageValidator interface {
	Validate(ctx context.Context, url string) error
}

// NopValidator accepts every URL.
type NopValidator struct{}

func (NopValidator) Validate(context.Context, string) error { return nil }

// SplitProxyTag splits tag on the marker. The tag must contain the marker
// exactly once with something on at least one side of it.
func SplitProxyTag(tag string) (prefix, suffix string, err error) {
	switch strings.Count(tag, Marker) {
	case 0:
		return "", "", errs.New(errs.InvalidProxyTag, msgNoTextForProxy)
	case 1:
	default:
		return "", "", errs.New(errs.InvalidProxyTag, msgTooManyMarkers)
	}
	prefix, suffix, _ = strings.Cut(tag, Marker)
	if prefix == "" && suffix == "" {
		return "", "", errs.New(errs.InvalidProxyTag, msgNoProxyWrapper)
	}
	return prefix, suffix, nil
}

// NormalizeProxyTag trims tag and checks its shape.
func NormalizeProxyTag(tag string) (string, error) {
	tag = strings.TrimSpace(tag)
	if _, _, err := SplitProxyTag(tag); err != nil {
		return "", err
	}
	return tag, nil
}

// ValidateDisplayName trims name and checks its length.
func ValidateDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return "", errs.New(errs.DisplayNameTooLong, msgDisplayNameTooLong)
	}
	return name, nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errs.New(errs.BlankValue, msgNoName)
	}
	return name, nil
}

func blankValue(f Field) error {
	return errs.Newf(errs.BlankValue, "No value was provided for the %s. Please provide a value.", f.Label())
}

func cantAdd(name string, err error) error {
	var e *errs.Error
	if !errors.As(err, &e) || !e.Kind.IsValidation() {
		return err
	}
	return &errs.Error{Kind: e.Kind, Message: fmt.Sprintf("Can't add %s. %s", name, e.Message), Err: e.Err}
}
