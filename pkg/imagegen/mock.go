package imagegen

import (
	"context"
	"net/url"
)

// Mock is the offline generator. It returns a placeholder image URL that
// carries the prompt text.
type Mock struct{}

// Generate returns a placehold.co URL for prompt.
func (Mock) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "https://placehold.co/512x512/png?" + url.Values{"text": {prompt}}.Encode(), nil
}
