package member

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"whatsapp-proxybot/internal/errs"
)

// Registry applies the member rules on top of a Store. Uniqueness is checked
// up front for friendly errors, but the store's unique constraints are what
// actually guarantee it.
type Registry struct {
	store  Store
	images ImageValidator
	log    zerolog.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a registry backed by store. A nil validator accepts
// every avatar.
func NewRegistry(store Store, images ImageValidator, opts ...Option) *Registry {
	if images == nil {
		images = NopValidator{}
	}
	r := &Registry{
		store:  store,
		images: images,
		log:    zerolog.Nop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create adds a member for owner after validating every field.
func (r *Registry) Create(ctx context.Context, ownerID string, in NewMember) (Member, error) {
	m, err := r.prepare(ctx, ownerID, in)
	if err != nil {
		return Member{}, err
	}
	if m.DisplayName, err = ValidateDisplayName(in.DisplayName); err != nil {
		return Member{}, cantAdd(m.Name, err)
	}
	if strings.TrimSpace(in.ProxyTag) != "" {
		if m.ProxyTag, err = r.checkProxyTag(ctx, ownerID, in.ProxyTag, ""); err != nil {
			return Member{}, cantAdd(m.Name, err)
		}
	}
	if avatar := strings.TrimSpace(in.AvatarURL); avatar != "" {
		if err := r.images.Validate(ctx, avatar); err != nil {
			return Member{}, err
		}
		m.AvatarURL = avatar
	}
	if err := r.insert(ctx, m); err != nil {
		return Member{}, err
	}
	return m, nil
}

// Remove deletes the member called name. Removing a missing member is an
// error.
func (r *Registry) Remove(ctx context.Context, ownerID, name string) (string, error) {
	name, err := normalizeName(name)
	if err != nil {
		return "", err
	}
	if err := r.store.DeleteByName(ctx, ownerID, name); err != nil {
		if errs.Is(err, errs.NotFound) {
			return "", errs.New(errs.NotFound, msgNoMember)
		}
		return "", err
	}
	r.log.Debug().Str("owner", ownerID).Str("member", name).Msg("Member removed")
	return fmt.Sprintf("Member %q has been deleted.", name), nil
}

// UpdateField sets one field of the member called name. The value gets the
// same validation as Create.
func (r *Registry) UpdateField(ctx context.Context, ownerID, name string, field Field, value string) (string, error) {
	if !field.Valid() {
		return "", errs.Newf(errs.UnknownCommand, "Unknown member field %q.", string(field))
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", blankValue(field)
	}
	current, err := r.GetByName(ctx, ownerID, name)
	if err != nil {
		return "", err
	}

	switch field {
	case FieldName:
		other, err := r.store.FindByName(ctx, ownerID, value)
		switch {
		case err == nil && other.ID != current.ID:
			return "", errs.Newf(errs.NameTaken, "Can't rename %s. %s", current.Name, msgMemberExists)
		case err != nil && !errs.Is(err, errs.NotFound):
			return "", err
		}
	case FieldDisplayName:
		if value, err = ValidateDisplayName(value); err != nil {
			return "", err
		}
	case FieldProxyTag:
		if value, err = r.checkProxyTag(ctx, ownerID, value, current.ID); err != nil {
			return "", err
		}
	case FieldAvatarURL:
		if err := r.images.Validate(ctx, value); err != nil {
			return "", err
		}
	}

	if err := r.store.UpdateField(ctx, ownerID, current.Name, field, value); err != nil {
		if errs.Is(err, errs.NotFound) {
			return "", errs.Newf(errs.NotFound, "Can't update %s. %s", current.Name, msgNoMember)
		}
		return "", explainConflict(err, "Can't update "+current.Name+".")
	}
	r.log.Debug().Str("owner", ownerID).Str("member", current.Name).Str("field", string(field)).Msg("Member updated")
	return fmt.Sprintf("Updated %s for %s to %s.", field.Label(), current.Name, value), nil
}

// GetByName returns the member called name, ignoring case.
func (r *Registry) GetByName(ctx context.Context, ownerID, name string) (Member, error) {
	name, err := normalizeName(name)
	if err != nil {
		return Member{}, err
	}
	m, err := r.store.FindByName(ctx, ownerID, name)
	if errs.Is(err, errs.NotFound) {
		return Member{}, errs.New(errs.NotFound, msgNoMember)
	}
	return m, err
}

// GetByProxyTag returns the member whose tag is exactly tag.
func (r *Registry) GetByProxyTag(ctx context.Context, ownerID, tag string) (Member, error) {
	m, err := r.store.FindByProxyTag(ctx, ownerID, strings.TrimSpace(tag))
	if errs.Is(err, errs.NotFound) {
		return Member{}, errs.New(errs.NotFound, msgNoMember)
	}
	return m, err
}

// ListByOwner returns the owner's members in creation order.
func (r *Registry) ListByOwner(ctx context.Context, ownerID string) ([]Member, error) {
	return r.store.ListByOwner(ctx, ownerID)
}

// ProxyTagExists reports whether another member of owner already uses tag.
// A malformed tag is rejected before any lookup.
func (r *Registry) ProxyTagExists(ctx context.Context, ownerID, tag string) (bool, error) {
	tag, err := NormalizeProxyTag(tag)
	if err != nil {
		return false, err
	}
	_, err = r.store.FindByProxyTag(ctx, ownerID, tag)
	switch {
	case err == nil:
		return true, nil
	case errs.Is(err, errs.NotFound):
		return false, nil
	default:
		return false, err
	}
}

// prepare validates the name and builds the skeleton record.
func (r *Registry) prepare(ctx context.Context, ownerID string, in NewMember) (Member, error) {
	name, err := normalizeName(in.Name)
	if err != nil {
		return Member{}, err
	}
	_, err = r.store.FindByName(ctx, ownerID, name)
	switch {
	case err == nil:
		return Member{}, errs.Newf(errs.NameTaken, "Can't add %s. %s", name, msgMemberExists)
	case !errs.Is(err, errs.NotFound):
		return Member{}, err
	}
	return Member{
		ID:        r.newID(),
		OwnerID:   ownerID,
		Name:      name,
		CreatedAt: r.now(),
	}, nil
}

// checkProxyTag normalizes tag and makes sure no member other than selfID
// holds it.
func (r *Registry) checkProxyTag(ctx context.Context, ownerID, tag, selfID string) (string, error) {
	tag, err := NormalizeProxyTag(tag)
	if err != nil {
		return "", err
	}
	holder, err := r.store.FindByProxyTag(ctx, ownerID, tag)
	switch {
	case err == nil && holder.ID != selfID:
		return "", errs.New(errs.ProxyTagTaken, msgProxyExists)
	case err != nil && !errs.Is(err, errs.NotFound):
		return "", err
	}
	return tag, nil
}

func (r *Registry) insert(ctx context.Context, m Member) error {
	if err := r.store.CreateMember(ctx, m); err != nil {
		return explainConflict(err, "Can't add "+m.Name+".")
	}
	r.log.Debug().Str("owner", m.OwnerID).Str("member", m.Name).Msg("Member created")
	return nil
}

// explainConflict turns a unique violation reported by the store into the
// same message the up-front checks produce.
func explainConflict(err error, lead string) error {
	switch errs.KindOf(err) {
	case errs.NameTaken:
		return &errs.Error{Kind: errs.NameTaken, Message: lead + " " + msgMemberExists, Err: err}
	case errs.ProxyTagTaken:
		return &errs.Error{Kind: errs.ProxyTagTaken, Message: lead + " " + msgProxyExists, Err: err}
	}
	return err
}
