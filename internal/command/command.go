// Package command turns tokenized "member" commands into registry calls and
// user-facing replies.
package command

import (
	"time"
)

// Kind is a command keyword. The set is closed; anything Parse does not
// recognise is Unknown, which the router treats as a member name.
type Kind int

const (
	Unknown Kind = iota
	Help
	New
	Remove
	Name
	DisplayName
	Proxy
	Propic
	List
)

var keywords = map[string]Kind{
	"":            Help,
	"--help":      Help,
	"help":        Help,
	"new":         New,
	"remove":      Remove,
	"name":        Name,
	"displayname": DisplayName,
	"proxy":       Proxy,
	"propic":      Propic,
	"list":        List,
}

// Parse maps a keyword to its Kind. Matching is case-sensitive.
func Parse(keyword string) Kind {
	return keywords[keyword]
}

var kindNames = [...]string{
	Unknown:     "unknown",
	Help:        "help",
	New:         "new",
	Remove:      "remove",
	Name:        "name",
	DisplayName: "displayname",
	Proxy:       "proxy",
	Propic:      "propic",
	List:        "list",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Caller identifies who sent the command.
type Caller struct {
	ID   string
	Name string
}

// Attachment is the first file sent with a command. ExpiresAt is zero when
// the platform keeps the file indefinitely.
type Attachment struct {
	URL       string
	ExpiresAt time.Time
}

// Reply is either plain text or a card. Platforms render cards themselves.
type Reply struct {
	Text string
	Card *Card
}

// Card is a structured reply.
type Card struct {
	Title       string
	Description string
	Fields      []Field
	ImageURL    string
	Footer      string
}

// Field is one labelled value on a card.
type Field struct {
	Name  string
	Value string
}

func text(s string) Reply { return Reply{Text: s} }
