package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/config"
)

// ErrNoImage is returned when the model responds without any inline image part.
var ErrNoImage = errors.New("no image part in response")

// Client calls the Gemini generateContent REST endpoint for image generation.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	log        *slog.Logger
}

// InlineImage is one base64-encoded image attached to a generation request.
type InlineImage struct {
	MimeType string
	Data     string
}

// GenerateRequest is the ordered multi-part payload: the instruction text
// first, then every inline image in the given order.
type GenerateRequest struct {
	Instruction string
	Images      []InlineImage
}

// GeneratedImage holds the first inline image part of a model response.
type GeneratedImage struct {
	MimeType string
	Data     string // base64
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &Client{
		apiKey:  cfg.GeminiAPIKey,
		baseURL: strings.TrimRight(cfg.GeminiBaseURL, "/"),
		model:   cfg.ImageModel,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// Model reports the configured image model identifier.
func (c *Client) Model() string {
	return c.model
}

type contentPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateContentRequest struct {
	Contents []struct {
		Parts []contentPart `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseModalities []string `json:"responseModalities"`
	} `json:"generationConfig"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text       string `json:"text"`
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GenerateImage submits the multi-part payload and returns the first inline
// image part of the response.
func (c *Client) GenerateImage(ctx context.Context, req GenerateRequest) (*GeneratedImage, error) {
	parts := make([]contentPart, 0, 1+len(req.Images))
	parts = append(parts, contentPart{Text: req.Instruction})
	for _, img := range req.Images {
		parts = append(parts, contentPart{
			InlineData: &inlineData{MimeType: img.MimeType, Data: img.Data},
		})
	}

	var payload generateContentRequest
	payload.Contents = append(payload.Contents, struct {
		Parts []contentPart `json:"parts"`
	}{Parts: parts})
	payload.GenerationConfig.ResponseModalities = []string{"IMAGE"}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post generate content: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Error("generate content failed", "status", resp.StatusCode, "model", c.model, "body", truncateBody(rawBody))
		}
		return nil, fmt.Errorf("gemini error: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
	}

	var parsed generateContentResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w (body=%s)", err, truncateBody(rawBody))
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("gemini error: code=%d status=%s msg=%s", parsed.Error.Code, parsed.Error.Status, parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 {
		return nil, ErrNoImage
	}

	for _, part := range parsed.Candidates[0].Content.Parts {
		if part.InlineData == nil || part.InlineData.Data == "" {
			continue
		}
		mime := part.InlineData.MimeType
		if mime == "" {
			mime = "image/png"
		}
		return &GeneratedImage{MimeType: mime, Data: part.InlineData.Data}, nil
	}

	return nil, ErrNoImage
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
