// Package dispatch decides which chat messages reach the agent and turns
// each accepted message into one agent turn and its chat replies.
package dispatch

import (
	"strings"

	"github.com/haasonsaas/relay/pkg/models"
	"golang.org/x/text/cases"
)

// resetCommands are the literal chat commands that forget a conversation.
var resetCommands = map[string]struct{}{
	"!reset": {},
	"!clear": {},
	"!new":   {},
}

// Policy filters inbound messages before any agent call.
type Policy struct {
	// MentionOnly requires the bot to be mentioned in guild channels.
	// Direct messages are always accepted.
	MentionOnly bool

	// AllowedChannels restricts the relay to these conversation IDs when
	// non-empty.
	AllowedChannels map[string]struct{}
}

// NewPolicy builds a Policy from a channel allow-list. Blank entries are
// ignored.
func NewPolicy(mentionOnly bool, channels []string) Policy {
	p := Policy{MentionOnly: mentionOnly}
	for _, ch := range channels {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		if p.AllowedChannels == nil {
			p.AllowedChannels = map[string]struct{}{}
		}
		p.AllowedChannels[ch] = struct{}{}
	}
	return p
}

// Allows reports whether msg should be handled at all.
func (p Policy) Allows(msg *models.Message) bool {
	if msg == nil || msg.AuthorIsBot {
		return false
	}
	if p.MentionOnly && msg.InGuild && !msg.Mentioned {
		return false
	}
	if len(p.AllowedChannels) > 0 {
		if _, ok := p.AllowedChannels[msg.ConversationID]; !ok {
			return false
		}
	}
	return true
}

// StripMentions removes every occurrence of the given mention tokens from
// text and trims the result.
func StripMentions(text string, mentions []string) string {
	for _, mention := range mentions {
		if mention != "" {
			text = strings.ReplaceAll(text, mention, "")
		}
	}
	return strings.TrimSpace(text)
}

// IsResetCommand reports whether text is one of the reset commands, ignoring
// case and surrounding whitespace.
func IsResetCommand(text string) bool {
	_, ok := resetCommands[cases.Fold().String(strings.TrimSpace(text))]
	return ok
}
