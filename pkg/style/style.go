// Package style holds the fixed set of icon style templates.
package style

import (
	"errors"
	"fmt"
	"strings"
)

// Marker is replaced by the item name when a template is rendered.
const Marker = "{ITEM}"

// ErrNotFound is returned when a style id is not registered.
var ErrNotFound = errors.New("style not found")

// ID identifies a built-in style.
type ID int

const (
	FlatVector ID = iota + 1
	Sticker
	Doodle
	Render3D
	Glyph
)

// Template is the prompt template for one style.
type Template struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
	Text string `json:"template"`
}

// Render substitutes item for every marker in the template.
func (t Template) Render(item string) string {
	return strings.ReplaceAll(t.Text, Marker, item)
}

var registry = [...]Template{
	{
		ID:   FlatVector,
		Name: "flat-vector",
		Text: "A cute, flat vector icon of {ITEM}. Thick dark purple outlines with a pastel color palette. Minimalist design, clean lines, isolated on a plain white background, high quality vector art icon.",
	},
	{
		ID:   Sticker,
		Name: "sticker",
		Text: "A round sticker-style vector icon illustration of {ITEM}. The {ITEM} is centered inside a pale circle. Scattered stars and small dots in the background behind the {ITEM}. Clean vector outlines, flat colors, playful and whimsical aesthetic, white background icon.",
	},
	{
		ID:   Doodle,
		Name: "doodle",
		Text: "A playful, hand-drawn vector icon illustration of {ITEM} launching through fluffy white clouds. The background is an abstract organic teal shape. Accented with small stars. Doodle aesthetic, bold outlines, vibrant colors, isolated on white icon.",
	},
	{
		ID:   Render3D,
		Name: "3d-render",
		Text: "A 3D rendered icon of {ITEM}. Smooth, glossy plastic texture with soft gradients. Vibrant colors. No outlines. Isometric view, soft studio lighting, modern 3D emoji style, high fidelity, isolated on white icon.",
	},
	{
		ID:   Glyph,
		Name: "glyph",
		Text: "A minimalist flat circle icon. A white silhouette of {ITEM} utilizing negative space, set against a solid color circular background. Clean, simple UI glyph style, single color background, vector graphics icon.",
	},
}

// Resolve returns the template registered for id.
func Resolve(id ID) (Template, error) {
	if id < FlatVector || int(id) > len(registry) {
		return Template{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return registry[id-1], nil
}

// All returns every registered template in id order.
func All() []Template {
	out := make([]Template, len(registry))
	copy(out, registry[:])
	return out
}
