package models

import "testing"

func TestMessage_IsCommand(t *testing.T) {
	var nilMsg *Message
	if nilMsg.IsCommand() {
		t.Error("nil message should not be a command")
	}
	if (&Message{Content: "hi"}).IsCommand() {
		t.Error("plain message should not be a command")
	}
	if !(&Message{Command: "ask"}).IsCommand() {
		t.Error("expected slash command message to report IsCommand")
	}
}

func TestMessage_MetadataString(t *testing.T) {
	msg := &Message{Metadata: map[string]any{
		"discord_message_id": "123",
		"count":              4,
	}}

	if got := msg.MetadataString("discord_message_id"); got != "123" {
		t.Errorf("expected 123, got %q", got)
	}
	if got := msg.MetadataString("count"); got != "" {
		t.Errorf("expected empty string for non-string value, got %q", got)
	}
	if got := msg.MetadataString("missing"); got != "" {
		t.Errorf("expected empty string for missing key, got %q", got)
	}
	if got := (&Message{}).MetadataString("any"); got != "" {
		t.Errorf("expected empty string for nil metadata, got %q", got)
	}
}
