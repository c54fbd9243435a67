package models

// GenerationRequest asks for one batch of icons on a topic in a style.
type GenerationRequest struct {
	RequestID string `json:"request_id,omitempty"`
	Topic     string `json:"topic" validate:"required"`
	StyleID   int    `json:"style_id" validate:"required,gt=0"`
	Colors    string `json:"colors,omitempty"`
}

// IconResult is one generated icon: the expanded item, the prompt sent to the
// image generator and the reference it returned.
type IconResult struct {
	Item     string `json:"item"`
	Prompt   string `json:"prompt"`
	ImageURL string `json:"imageUrl"`
}

// GenerationResponse is the ordered icon batch for a request.
type GenerationResponse struct {
	StyleID int          `json:"styleId"`
	Icons   []IconResult `json:"icons"`
}
