package member

import (
	"context"
	"fmt"
	"strings"

	"whatsapp-proxybot/internal/errs"
)

const msgNoMembersImported = "No members were imported."

// FieldError is a non-fatal problem with one field of an imported member.
// The field was left unset.
type FieldError struct {
	Field Field
	Err   error
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field.Label(), e.Err)
}

func (e FieldError) Unwrap() error { return e.Err }

// ImportSummary lists the members an import created.
type ImportSummary struct {
	Added []string
}

// Message is the human summary of the import.
func (s ImportSummary) Message() string {
	if len(s.Added) == 0 {
		return msgNoMembersImported
	}
	return "Successfully added members: " + strings.Join(s.Added, ", ")
}

// Import is the relaxed form of Create used when bringing members over from
// another bot. An invalid display name, proxy tag or avatar is dropped and
// reported as a FieldError instead of failing the whole member. Name
// conflicts and storage failures are still fatal.
func (r *Registry) Import(ctx context.Context, ownerID string, in NewMember) (Member, []FieldError, error) {
	m, err := r.prepare(ctx, ownerID, in)
	if err != nil {
		return Member{}, nil, err
	}
	var fieldErrs []FieldError

	if name, err := ValidateDisplayName(in.DisplayName); err != nil {
		fieldErrs = append(fieldErrs, FieldError{Field: FieldDisplayName, Err: err})
	} else {
		m.DisplayName = name
	}

	if strings.TrimSpace(in.ProxyTag) != "" {
		tag, err := r.checkProxyTag(ctx, ownerID, in.ProxyTag, "")
		switch {
		case err == nil:
			m.ProxyTag = tag
		case errs.KindOf(err).IsValidation():
			fieldErrs = append(fieldErrs, FieldError{Field: FieldProxyTag, Err: err})
		default:
			return Member{}, nil, err
		}
	}

	if avatar := strings.TrimSpace(in.AvatarURL); avatar != "" {
		if err := r.images.Validate(ctx, avatar); err != nil {
			fieldErrs = append(fieldErrs, FieldError{Field: FieldAvatarURL, Err: err})
		} else {
			m.AvatarURL = avatar
		}
	}

	if err := r.insert(ctx, m); err != nil {
		return Member{}, nil, err
	}
	if len(fieldErrs) > 0 {
		r.log.Info().Str("owner", ownerID).Str("member", m.Name).Int("field_errors", len(fieldErrs)).Msg("Member imported with dropped fields")
	}
	return m, fieldErrs, nil
}

// ImportAll imports every record. Nothing is rolled back: members that were
// created stay created. When any record failed or had fields dropped the
// returned error is an *errs.AggregateError carrying the summary and each
// cause.
func (r *Registry) ImportAll(ctx context.Context, ownerID string, records []NewMember) (ImportSummary, error) {
	var summary ImportSummary
	var causes []error

	for _, rec := range records {
		m, fieldErrs, err := r.Import(ctx, ownerID, rec)
		if err != nil {
			causes = append(causes, err)
			continue
		}
		summary.Added = append(summary.Added, m.Name)
		for _, fe := range fieldErrs {
			causes = append(causes, &errs.Error{
				Kind:    errs.KindOf(fe.Err),
				Message: fmt.Sprintf("%s (%s): %s", m.Name, fe.Field.Label(), errs.UserMessage(fe.Err)),
				Err:     fe,
			})
		}
	}

	if len(causes) > 0 {
		return summary, &errs.AggregateError{Summary: summary.Message(), Errors: causes}
	}
	return summary, nil
}
