// Package imagegen renders one icon image per prompt.
package imagegen

import (
	"context"
	"errors"
)

// ErrMissingAPIToken is returned when a live provider is configured without a token.
var ErrMissingAPIToken = errors.New("replicate api token is missing")

// Generator renders a prompt and returns a reference to the image.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
