package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultReplicateURL   = "https://api.replicate.com"
	DefaultReplicateModel = "black-forest-labs/flux-schnell"
	DefaultPollInterval   = time.Second
)

// ReplicateConfig configures the Replicate generator.
type ReplicateConfig struct {
	URL          string
	APIToken     string
	Model        string
	PollInterval time.Duration
	HTTPClient   *http.Client
}

// Replicate generates images with a Replicate-hosted model. Aspect ratio and
// output encoding are fixed.
type Replicate struct {
	cfg ReplicateConfig
}

// NewReplicate creates a Replicate generator.
func NewReplicate(cfg ReplicateConfig) (*Replicate, error) {
	if cfg.APIToken == "" {
		return nil, ErrMissingAPIToken
	}
	if cfg.URL == "" {
		cfg.URL = DefaultReplicateURL
	}
	cfg.URL = strings.TrimSuffix(cfg.URL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultReplicateModel
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Replicate{cfg: cfg}, nil
}

type predictionInput struct {
	Prompt        string `json:"prompt"`
	GoFast        bool   `json:"go_fast"`
	NumOutputs    int    `json:"num_outputs"`
	AspectRatio   string `json:"aspect_ratio"`
	OutputFormat  string `json:"output_format"`
	OutputQuality int    `json:"output_quality"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

func (p *prediction) terminal() bool {
	switch p.Status {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

// firstOutput returns the first image reference, accepting either a single
// string or a list of strings.
func (p *prediction) firstOutput() (string, error) {
	var list []string
	if err := json.Unmarshal(p.Output, &list); err == nil {
		if len(list) == 0 || list[0] == "" {
			return "", fmt.Errorf("prediction %s returned no output", p.ID)
		}
		return list[0], nil
	}
	var single string
	if err := json.Unmarshal(p.Output, &single); err != nil || single == "" {
		return "", fmt.Errorf("prediction %s returned unexpected output %s", p.ID, string(p.Output))
	}
	return single, nil
}

// Generate creates a prediction and waits for it to finish.
func (r *Replicate) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]predictionInput{
		"input": {
			Prompt:        prompt,
			GoFast:        true,
			NumOutputs:    1,
			AspectRatio:   "1:1",
			OutputFormat:  "png",
			OutputQuality: 80,
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode prediction: %w", err)
	}

	pred, err := r.do(ctx, http.MethodPost, r.cfg.URL+"/v1/models/"+r.cfg.Model+"/predictions", body)
	if err != nil {
		return "", err
	}

	for !pred.terminal() {
		if pred.URLs.Get == "" {
			return "", fmt.Errorf("replicate: prediction %s is %s with no poll url", pred.ID, pred.Status)
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("replicate: prediction %s: %w", pred.ID, ctx.Err())
		case <-time.After(r.cfg.PollInterval):
		}
		if pred, err = r.do(ctx, http.MethodGet, pred.URLs.Get, nil); err != nil {
			return "", err
		}
	}

	if pred.Status != "succeeded" {
		return "", fmt.Errorf("replicate: prediction %s %s: %v", pred.ID, pred.Status, pred.Error)
	}
	return pred.firstOutput()
}

// do sends a request to the Replicate API and decodes the prediction.
func (r *Replicate) do(ctx context.Context, method, url string, body []byte) (*prediction, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "wait")
	}

	resp, err := r.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("replicate: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("replicate: %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	var pred prediction
	if err := json.Unmarshal(respBody, &pred); err != nil {
		return nil, fmt.Errorf("decode prediction: %w", err)
	}
	return &pred, nil
}
