package cover

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	togetherImagesURL = "https://api.together.xyz/v1/images/generations"
	coverModel        = "black-forest-labs/FLUX.1-dev"
)

// TogetherImages renders images with Together's image generation API.
type TogetherImages struct {
	apiKey   string
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewTogetherImages creates the backend.
func NewTogetherImages(apiKey string, logger *zap.Logger) *TogetherImages {
	return &TogetherImages{
		apiKey:   apiKey,
		endpoint: togetherImagesURL,
		client:   &http.Client{Timeout: 60 * time.Second},
		logger:   logger,
	}
}

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Steps          int    `json:"steps"`
	N              int    `json:"n"`
	ResponseFormat string `json:"response_format"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// GenerateImage renders a 1024x768 cover for the prompt.
func (t *TogetherImages) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	if t.apiKey == "" {
		return nil, fmt.Errorf("together image api key not configured")
	}

	body, err := json.Marshal(imageRequest{
		Model:          coverModel,
		Prompt:         prompt,
		Width:          1024,
		Height:         768,
		Steps:          30,
		N:              1,
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal image request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("image request returned %d: %s", resp.StatusCode, snippet)
	}

	var parsed imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode image response: %w", err)
	}
	if len(parsed.Data) == 0 || parsed.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("image response contained no image data")
	}

	img, err := base64.StdEncoding.DecodeString(parsed.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image payload: %w", err)
	}
	return img, nil
}
