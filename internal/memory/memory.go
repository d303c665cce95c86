// Package memory implements the per-user rolling conversation summary that
// gets injected into future system prompts.
package memory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// MaxEntries caps the rolling window; oldest entries are evicted first.
	MaxEntries = 10

	topicLimit    = 100
	responseLimit = 200

	CurrentVersion = 1
)

type Entry struct {
	LastInteraction time.Time `json:"last_interaction"`
	Topic           string    `json:"topic"`
	Response        string    `json:"response"`
}

type Blob struct {
	Version       int     `json:"version"`
	Conversations []Entry `json:"conversations"`
}

// Decode parses a stored memory blob. It tolerates a plain JSON object, a
// double-encoded JSON string, and unversioned legacy blobs. Anything it
// cannot make sense of yields an empty blob rather than an error: memory is
// best-effort and must never fail a chat turn.
func Decode(raw []byte) Blob {
	if len(raw) == 0 {
		return empty()
	}

	data := raw
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		data = []byte(asString)
	}

	var blob Blob
	if err := json.Unmarshal(data, &blob); err != nil {
		return empty()
	}
	if blob.Version == 0 {
		blob.Version = CurrentVersion
	}
	if len(blob.Conversations) > MaxEntries {
		blob.Conversations = blob.Conversations[len(blob.Conversations)-MaxEntries:]
	}
	return blob
}

func (b Blob) Encode() ([]byte, error) {
	payload, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal memory blob failed: %w", err)
	}
	return payload, nil
}

// Append records a completed turn, truncating topic and response and
// evicting the oldest entries past the cap.
func (b Blob) Append(now time.Time, userText, assistantText string) Blob {
	entry := Entry{
		LastInteraction: now,
		Topic:           truncate(userText, topicLimit),
		Response:        truncate(assistantText, responseLimit),
	}

	next := b
	next.Version = CurrentVersion
	next.Conversations = append(append([]Entry(nil), b.Conversations...), entry)
	if len(next.Conversations) > MaxEntries {
		next.Conversations = next.Conversations[len(next.Conversations)-MaxEntries:]
	}
	return next
}

// PromptBlock renders up to n of the most recent entries as a bulleted
// context block for the system prompt. Returns "" when there is nothing to
// recall.
func (b Blob) PromptBlock(n int) string {
	if n <= 0 || len(b.Conversations) == 0 {
		return ""
	}

	entries := b.Conversations
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}

	var sb strings.Builder
	sb.WriteString("Context from previous conversations with this user:\n")
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		sb.WriteString("- ")
		sb.WriteString(entry.Topic)
		if entry.Response != "" {
			sb.WriteString(" -> ")
			sb.WriteString(entry.Response)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func empty() Blob {
	return Blob{Version: CurrentVersion}
}
