// Package expander turns a topic into concrete icon item names.
package expander

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ItemCount is how many items one expansion yields.
const ItemCount = 4

// ErrMissingAPIKey is returned when a live provider is configured without a key.
var ErrMissingAPIKey = errors.New("gemini api key is missing")

// Expander expands a topic and optional color hint into item names.
type Expander interface {
	Expand(ctx context.Context, topic, colors string) ([]string, error)
}

const systemPrompt = "You are a creative assistant. Your task is to take a single topic (e.g., 'Toys') and generate 4 distinct, specific icons related to that topic (e.g., 'Teddy Bear', 'Toy Car', 'Rubber Duck', 'Yo-Yo'). Return ONLY a JSON array of strings. Do not include markdown formatting or backticks."

// userMessage builds the per-request prompt sent after the system prompt.
func userMessage(topic, colors string) string {
	msg := "Topic: " + topic
	if colors != "" {
		msg += "\nBrand Colors: " + colors + ". Please describe the items in a way that incorporates these colors naturally."
	}
	return msg
}

// ParseItems decodes a model reply into item names. Markdown code fences
// around the JSON array are tolerated.
func ParseItems(text string) ([]string, error) {
	clean := strings.ReplaceAll(text, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")
	clean = strings.TrimSpace(clean)

	var items []string
	if err := json.Unmarshal([]byte(clean), &items); err != nil {
		return nil, fmt.Errorf("decode expansion %q: %w", truncate(clean, 200), err)
	}
	for i := range items {
		items[i] = strings.TrimSpace(items[i])
	}
	return items, nil
}

// truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
