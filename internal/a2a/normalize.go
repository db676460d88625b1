package a2a

import (
	"fmt"
	"strings"
)

// Result is the normalized outcome of one remote call.
//
// Exactly one of two shapes is produced: a failure (ErrorText set, Text empty,
// no token) or a success whose Text may legitimately be empty.
type Result struct {
	Text              string
	ContinuationToken *string
	ErrorText         *string
}

// Failed reports whether the agent signaled an error.
func (r Result) Failed() bool {
	return r.ErrorText != nil
}

// Token returns the continuation token and whether one was issued.
func (r Result) Token() (string, bool) {
	if r.ContinuationToken == nil {
		return "", false
	}
	return *r.ContinuationToken, true
}

// Normalize reduces an Envelope to answer text, an optional continuation
// token and an optional error message.
func Normalize(env Envelope) Result {
	switch e := env.(type) {
	case *ErrorEnvelope:
		msg := e.Message
		return Result{ErrorText: &msg}

	case nil, *EmptyEnvelope:
		return Result{}

	case *ArtifactEnvelope:
		text := artifactText(e.Artifacts)
		if text == "" && e.Status != nil && e.Status.Message != nil {
			text = partsText(e.Status.Message.Parts)
		}
		return Result{
			Text:              text,
			ContinuationToken: pickToken(e.ContextID, e.FallbackID),
		}

	case *DirectEnvelope:
		return Result{
			Text:              partsText(e.Parts),
			ContinuationToken: pickToken(e.ContextID, e.FallbackID),
		}

	case *OpaqueEnvelope:
		return Result{
			Text:              string(e.Raw),
			ContinuationToken: pickToken(e.ContextID, e.FallbackID),
		}

	default:
		return Result{Text: fmt.Sprintf("%v", env)}
	}
}

// artifactText concatenates the text of every text-bearing part, in artifact
// order then part order, with no separator.
func artifactText(artifacts []Artifact) string {
	var b strings.Builder
	for _, artifact := range artifacts {
		writeParts(&b, artifact.Parts)
	}
	return b.String()
}

func partsText(parts []Part) string {
	var b strings.Builder
	writeParts(&b, parts)
	return b.String()
}

func writeParts(b *strings.Builder, parts []Part) {
	for _, part := range parts {
		if part.Text != nil {
			b.WriteString(*part.Text)
		}
	}
}

func pickToken(primary, fallback *string) *string {
	if primary != nil {
		return primary
	}
	return fallback
}
