package command

import "strings"

// Help texts use {p} for the command prefix.
const (
	helpShortHelp   = "Lists available commands."
	helpShortMember = "Accesses subcommands related to proxy members."
	helpBot         = "proxybot is a proxy bot for WhatsApp groups, akin to PluralKit and Tupperbox. All commands are prefixed by `{p}`. Add ` --help` to the end of a command to find out more about it, or just send it without arguments."
	helpBotShort    = "proxybot is a proxy bot for WhatsApp groups, akin to PluralKit and Tupperbox. All commands are prefixed by `{p}`. Type `{p}help` for info on the bot itself."

	helpMember      = "Accesses the sub-commands related to editing proxy members. The available subcommands are `list`, `new`, `remove`, `name`, `displayname`, `proxy`, and `propic`. Add ` --help` to the end of a subcommand to find out more about it, or just send it without arguments."
	helpNew         = "Creates a new member to proxy with, for example: `{p}member new jane`. The member name should ideally be short so you can write other commands with it easily.\n\nYou can optionally add a display name after the member name, for example: `{p}member new jane \"Jane Doe | ze/hir\"`. If it has spaces, put it in double quotes. The length limit is 32 characters."
	helpRemove      = "Removes a member based on their name, for example: `{p}member remove jane`."
	helpName        = "Updates the name for a specific member based on their current name, for example: `{p}member john name jane`. The member name should ideally be short so you can write other commands with it easily."
	helpDisplayName = "Updates the display name for a specific member based on their name, for example: `{p}member jane displayname \"Jane Doe | ze/hir\"`. This can be up to 32 characters long. If it has spaces, put it in double quotes."
	helpProxy       = "Updates the proxy tag for a specific member based on their name. The proxy must be formatted with the tags surrounding the word 'text', for example: `{p}member jane proxy Jane:text` or `{p}member amal proxy [text]`. This is so the bot can detect what the proxy tags are. Only one proxy can be set per member currently."
	helpPropic      = "Updates the profile picture for the member. Must be in JPG, PNG, or WEBP format and less than 1MB. Pass in a direct remote image URL, for example: `{p}member jane propic https://cdn.pixabay.com/photo/2020/05/02/02/54/animal-5119676_1280.jpg`. You can upload images on sites like https://imgbb.com/."
	helpList        = "Lists all of your members along with their proxy tags, for example: `{p}member list`."
)

var kindHelp = map[Kind]string{
	Help:        helpMember,
	New:         helpNew,
	Remove:      helpRemove,
	Name:        helpName,
	DisplayName: helpDisplayName,
	Proxy:       helpProxy,
	Propic:      helpPropic,
	List:        helpList,
}

func (r *Router) help(k Kind) Reply {
	h, ok := kindHelp[k]
	if !ok {
		h = helpMember
	}
	return text(r.withPrefix(h))
}

func (r *Router) withPrefix(s string) string {
	return strings.ReplaceAll(s, "{p}", r.prefix)
}
