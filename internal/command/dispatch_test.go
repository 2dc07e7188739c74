package command_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-proxybot/internal/command"
	"whatsapp-proxybot/internal/errs"
)

func TestIsCommand(t *testing.T) {
	r, _ := newRouter(t)
	assert.True(t, r.IsCommand("pf;member list"))
	assert.True(t, r.IsCommand("  pf;"))
	assert.False(t, r.IsCommand("[pf;]"))
	assert.False(t, r.IsCommand("hello"))
}

func TestHandle(t *testing.T) {
	r, _ := newRouter(t)
	ctx := context.Background()

	reply, err := r.Handle(ctx, caller, "pf;", nil)
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Type `pf;help`")

	reply, err = r.Handle(ctx, caller, "pf;help", nil)
	require.NoError(t, err)
	require.NotNil(t, reply.Card)
	assert.Equal(t, "Commands", reply.Card.Title)
	assert.Equal(t, "Prefix: pf;", reply.Card.Footer)
	assert.Equal(t, []string{"pf;help", "pf;member"}, []string{reply.Card.Fields[0].Name, reply.Card.Fields[1].Name})

	reply, err = r.Handle(ctx, caller, `pf;member new jane "Jane Doe"`, nil)
	require.NoError(t, err)
	assert.Equal(t, "Member was successfully added.\nName: jane\nDisplay name: Jane Doe", reply.Text)

	reply, err = r.Handle(ctx, caller, "pf;member", nil)
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "sub-commands")

	_, err = r.Handle(ctx, caller, "pf;import", nil)
	assert.True(t, errs.Is(err, errs.UnknownCommand))
	assert.Equal(t, "No such command exists.", errs.UserMessage(err))
}

func TestHandleCustomPrefix(t *testing.T) {
	r, _ := newRouter(t, command.WithPrefix("!"))
	ctx := context.Background()

	assert.False(t, r.IsCommand("pf;member list"))
	reply, err := r.Handle(ctx, caller, "!member list", nil)
	require.NoError(t, err)
	assert.Equal(t, "You have no members created.", reply.Text)
}
