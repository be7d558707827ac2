package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"tuliu-backend/pkg/config"
	"tuliu-backend/pkg/errutil"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const translateSystemPrompt = "Translate user's raw Chinese input into a professional English prompt optimized for Flux.1 image generation. Output only the English prompt, no explanations."

var Module = fx.Module("ai.client", fx.Provide(NewClient))

// Client talks to the SiliconFlow-style provider for both prompt translation
// and image generation. It is constructed once at startup and injected.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	translateModel string
	imageModel     string
}

type ClientParams struct {
	fx.In
	Config *config.Config
}

func NewClient(p ClientParams) *Client {
	sf := p.Config.SiliconFlow
	return &Client{
		httpClient:     &http.Client{Timeout: sf.Timeout},
		baseURL:        strings.TrimRight(sf.BaseURL, "/"),
		apiKey:         sf.APIKey,
		translateModel: sf.TranslateModel,
		imageModel:     sf.ImageModel,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Translate converts a free-text description into an optimized English
// generation prompt. A malformed-but-successful provider response falls back
// to the source prompt; the result is never empty.
func (c *Client) Translate(ctx context.Context, sourcePrompt string) (string, error) {
	body := chatRequest{
		Model: c.translateModel,
		Messages: []chatMessage{
			{Role: "system", Content: translateSystemPrompt},
			{Role: "user", Content: sourcePrompt},
		},
		MaxTokens:   500,
		Temperature: 0.7,
	}

	var resp chatResponse
	if err := c.post(ctx, "/chat/completions", body, &resp); err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		zap.L().Warn("translation response had no choices, using source prompt")
		return sourcePrompt, nil
	}

	translated := strings.TrimSpace(resp.Choices[0].Message.Content)
	if translated == "" {
		return sourcePrompt, nil
	}
	return translated, nil
}

type imageRequest struct {
	Model             string  `json:"model"`
	Prompt            string  `json:"prompt"`
	Image             string  `json:"image,omitempty"`
	ImageSize         string  `json:"image_size"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
}

type imageResponse struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
}

// GenerateImage submits the translated prompt, plus the source image for
// image-to-image requests, and returns the provider URL of the generated
// image.
func (c *Client) GenerateImage(ctx context.Context, prompt, sourceImageURL string, width, height int) (string, error) {
	body := imageRequest{
		Model:             c.imageModel,
		Prompt:            prompt,
		Image:             sourceImageURL,
		ImageSize:         fmt.Sprintf("%dx%d", width, height),
		NumInferenceSteps: 20,
		GuidanceScale:     7.5,
	}

	var resp imageResponse
	if err := c.post(ctx, "/text_to_image", body, &resp); err != nil {
		return "", err
	}

	if len(resp.Images) == 0 || resp.Images[0].URL == "" {
		return "", errutil.BadGateway("no image URL returned from provider")
	}
	return resp.Images[0].URL, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errutil.BadGateway("provider request failed", errutil.WithErr(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errutil.BadGateway(fmt.Sprintf("provider returned %s", resp.Status))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errutil.BadGateway("failed to decode provider response", errutil.WithErr(err))
	}
	return nil
}
