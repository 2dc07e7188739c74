package command

import (
	"context"
	"strings"

	"whatsapp-proxybot/internal/errs"
	"whatsapp-proxybot/internal/tokenize"
)

// top-level commands, in the order help lists them
var topLevel = []struct {
	name, desc string
}{
	{"help", helpShortHelp},
	{"member", helpShortMember},
}

// IsCommand reports whether content starts with the command prefix.
func (r *Router) IsCommand(content string) bool {
	return strings.HasPrefix(strings.TrimSpace(content), r.prefix)
}

// Handle runs a prefixed message. The bare prefix describes the bot, help
// lists the commands and member goes to Route. Anything else is
// errs.UnknownCommand.
func (r *Router) Handle(ctx context.Context, caller Caller, content string, att *Attachment) (Reply, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(content), r.prefix)
	if !ok {
		return Reply{}, errs.New(errs.UnknownCommand, msgNoSuchCommand)
	}
	name, args, _ := strings.Cut(rest, " ")

	r.log.Debug().Str("owner", caller.ID).Str("command", name).Msg("Handling command")
	switch name {
	case "":
		return text(r.withPrefix(helpBotShort)), nil
	case "help":
		return r.commandList(), nil
	case "member":
		return r.Route(ctx, caller, tokenize.Split(strings.TrimSpace(args)), att)
	}
	return Reply{}, errs.New(errs.UnknownCommand, msgNoSuchCommand)
}

func (r *Router) commandList() Reply {
	card := &Card{
		Title:       "Commands",
		Description: r.withPrefix(helpBot),
		Footer:      "Prefix: " + r.prefix,
	}
	for _, c := range topLevel {
		card.Fields = append(card.Fields, Field{Name: r.prefix + c.name, Value: c.desc})
	}
	return Reply{Card: card}
}
