package models

import "time"

// ChannelType represents a messaging platform.
type ChannelType string

const (
	ChannelDiscord ChannelType = "discord"
	ChannelCLI     ChannelType = "cli"
)

// Direction indicates if a message is inbound or outbound.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Message is the unified inbound event format handed from a channel adapter
// to the dispatcher.
type Message struct {
	ID        string      `json:"id"`
	Channel   ChannelType `json:"channel"`
	Direction Direction   `json:"direction"`
	Role      Role        `json:"role"`

	// ConversationID identifies the conversation (a Discord channel ID). It is
	// only ever used as a map key.
	ConversationID string `json:"conversation_id"`

	AuthorID    string `json:"author_id"`
	AuthorName  string `json:"author_name,omitempty"`
	AuthorIsBot bool   `json:"author_is_bot,omitempty"`

	// InGuild is false for direct messages. Mention gating only applies in guilds.
	InGuild   bool `json:"in_guild,omitempty"`
	Mentioned bool `json:"mentioned,omitempty"`

	// SelfMentions are the literal tokens in Content that address the bot,
	// e.g. "<@123>" and "<@!123>" on Discord.
	SelfMentions []string `json:"self_mentions,omitempty"`

	// Command is set when the message came from a slash command invocation
	// rather than a plain chat message.
	Command string `json:"command,omitempty"`

	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// IsCommand reports whether the message originated from a slash command.
func (m *Message) IsCommand() bool {
	return m != nil && m.Command != ""
}

// MetadataString returns a string metadata value, or "" when missing.
func (m *Message) MetadataString(key string) string {
	if m == nil || m.Metadata == nil {
		return ""
	}
	value, _ := m.Metadata[key].(string)
	return value
}
