// Package chat handles in-room chat: message sections, the profanity
// filter, and per-player spam limiting.
package chat

import "strings"

// Section is one styled fragment of a chat message. Messages are lists of
// sections so server notices can mix plain text with highlighted usernames.
type Section struct {
	Text  string `json:"text"`
	Style string `json:"style,omitempty"`
}

// Message is a complete chat line as broadcast to a room.
type Message struct {
	Sections []Section `json:"sections"`
}

// Plain builds a single-section unstyled message.
func Plain(text string) Message {
	return Message{Sections: []Section{{Text: text}}}
}

// PlayerMessage builds a player chat line: highlighted username prefix
// followed by the message body.
func PlayerMessage(username, text string) Message {
	return Message{Sections: []Section{
		{Text: username, Style: "username"},
		{Text: ": " + text},
	}}
}

// Notice builds a server notice line.
func Notice(text string) Message {
	return Message{Sections: []Section{{Text: text, Style: "notice"}}}
}

// Censor replaces every occurrence of a banned word with asterisks,
// case-insensitively. Substring matching: banned words inside longer words
// are censored too.
func Censor(text string, banned []string) string {
	if len(banned) == 0 {
		return text
	}
	lower := strings.ToLower(text)
	for _, word := range banned {
		w := strings.ToLower(word)
		if w == "" {
			continue
		}
		for {
			i := strings.Index(lower, w)
			if i < 0 {
				break
			}
			mask := strings.Repeat("*", len(w))
			text = text[:i] + mask + text[i+len(w):]
			lower = lower[:i] + mask + lower[i+len(w):]
		}
	}
	return text
}
