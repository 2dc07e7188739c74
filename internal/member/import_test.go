package member_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-proxybot/internal/errs"
	"whatsapp-proxybot/internal/member"
)

func TestImportDropsInvalidFields(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	m, fieldErrs, err := r.Import(ctx, owner, member.NewMember{
		Name:        "jane",
		DisplayName: strings.Repeat("a", 40),
		ProxyTag:    "hello",
		AvatarURL:   "https://example.com/huge.gif",
	})
	require.NoError(t, err)
	assert.Equal(t, "jane", m.Name)
	assert.Empty(t, m.DisplayName)
	assert.Empty(t, m.ProxyTag)
	assert.Empty(t, m.AvatarURL)

	require.Len(t, fieldErrs, 3)
	assert.Equal(t, member.FieldDisplayName, fieldErrs[0].Field)
	assert.True(t, errs.Is(fieldErrs[0], errs.DisplayNameTooLong))
	assert.Equal(t, member.FieldProxyTag, fieldErrs[1].Field)
	assert.True(t, errs.Is(fieldErrs[1], errs.InvalidProxyTag))
	assert.Equal(t, member.FieldAvatarURL, fieldErrs[2].Field)
	assert.True(t, errs.Is(fieldErrs[2], errs.InvalidImage))

	got, err := r.GetByName(ctx, owner, "jane")
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestImportNameConflictIsFatal(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	_, err := r.Create(ctx, owner, member.NewMember{Name: "jane"})
	require.NoError(t, err)

	_, _, err = r.Import(ctx, owner, member.NewMember{Name: "Jane"})
	assert.True(t, errs.Is(err, errs.NameTaken), "got %v", err)
}

func TestImportAllReportsPartialSuccess(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	_, err := r.Create(ctx, owner, member.NewMember{Name: "john"})
	require.NoError(t, err)

	summary, err := r.ImportAll(ctx, owner, []member.NewMember{
		{Name: "jane", ProxyTag: "[text]"},
		{Name: "john"},
		{Name: "amal", AvatarURL: "https://example.com/huge.gif"},
	})
	assert.Equal(t, []string{"jane", "amal"}, summary.Added)

	var agg *errs.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, "Successfully added members: jane, amal", agg.Summary)
	require.Len(t, agg.Errors, 2)
	assert.True(t, errs.Is(agg.Errors[0], errs.NameTaken))
	assert.True(t, errs.Is(agg.Errors[1], errs.InvalidImage))
	assert.Contains(t, agg.Errors[1].Error(), "amal (profile picture)")
	assert.True(t, errs.Is(err, errs.NameTaken))
	assert.True(t, errs.Is(err, errs.InvalidImage))
	assert.True(t, errs.KindOf(err).IsValidation())

	// nothing was rolled back
	list, err := r.ListByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestImportAllClean(t *testing.T) {
	r, _ := newRegistry(t)
	summary, err := r.ImportAll(context.Background(), owner, []member.NewMember{{Name: "jane"}, {Name: "john"}})
	require.NoError(t, err)
	assert.Equal(t, "Successfully added members: jane, john", summary.Message())
}

func TestImportAllNothingImported(t *testing.T) {
	r, _ := newRegistry(t)
	summary, err := r.ImportAll(context.Background(), owner, []member.NewMember{{Name: " "}})
	var agg *errs.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, "No members were imported.", agg.Summary)
	assert.Empty(t, summary.Added)
}
