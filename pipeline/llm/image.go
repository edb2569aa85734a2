package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Environment configuration for the image backend.
const (
	// EnvImageBaseURL overrides the image backend base URL.
	EnvImageBaseURL = "IMAGE_API_URL"

	DefaultImageBaseURL = "http://127.0.0.1:5001"
)

// ImageGenerator is the image-backend surface the Text2Image step
// consumes.
type ImageGenerator interface {
	// Txt2Img renders a prompt and returns the first image as a base64
	// encoded PNG.
	Txt2Img(ctx context.Context, prompt string, width, height, steps int) (string, error)
}

// ImageClient talks to an AUTOMATIC1111-compatible image synthesis server
// (POST /sdapi/v1/txt2img).
//
// Image synthesis runs far longer than chat completion, so the default
// timeout is generous.
type ImageClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewImageClient creates an ImageClient for the given backend.
func NewImageClient(baseURL string) *ImageClient {
	return &ImageClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

// NewImageClientFromEnv creates an ImageClient from IMAGE_API_URL, falling
// back to the local default.
func NewImageClientFromEnv() *ImageClient {
	baseURL := os.Getenv(EnvImageBaseURL)
	if baseURL == "" {
		baseURL = DefaultImageBaseURL
	}
	return NewImageClient(baseURL)
}

// Txt2Img implements ImageGenerator.
func (c *ImageClient) Txt2Img(ctx context.Context, prompt string, width, height, steps int) (string, error) {
	body, err := json.Marshal(map[string]any{
		"prompt": prompt,
		"width":  width,
		"height": height,
		"steps":  steps,
	})
	if err != nil {
		return "", fmt.Errorf("marshal txt2img request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/sdapi/v1/txt2img", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create txt2img request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("txt2img: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("txt2img: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("txt2img: status %d: %s", resp.StatusCode, truncate(respBody, 512))
	}

	var parsed struct {
		Images []string `json:"images"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("txt2img: decode response: %w", err)
	}
	if len(parsed.Images) == 0 {
		return "", fmt.Errorf("txt2img: backend returned no images")
	}
	return parsed.Images[0], nil
}
