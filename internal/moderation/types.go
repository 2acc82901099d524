package moderation

import "github.com/duochat/chat-app/internal/chat"

// CheckRequest is published to moderation.check by the coordination server
// when a relayed message needs async content review. Context carries the
// chat's recent-message ring buffer so a reviewer sees the flag in
// conversation, not in isolation.
type CheckRequest struct {
	UserID  string                 `json:"user_id"`
	ChatID  string                 `json:"chat_id"`
	Text    string                 `json:"text"`
	Context []chat.BufferedMessage `json:"context,omitempty"`
	Ts      int64                  `json:"ts"`
}

// FilterResult is the outcome of running a message through the filter.
type FilterResult struct {
	Blocked bool
	Reason  string // "blocked_keyword" or "spam_pattern"
	Term    string // the matched word, phrase, or pattern name
}
