package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/config"
)

const enhancerSystemPrompt = `You are a professional YouTube thumbnail designer.
Your job is to generate a highly detailed thumbnail design prompt based on the user's video title, description, and any provided images.

Follow this structure for the output:
"A photorealistic [shot type] of [main subject or key elements], [specific action or expression], set in [background/environment/theme]. The scene is illuminated by [lighting style], creating a [mood/emotion] atmosphere. Captured with a [camera/lens style or focus], emphasizing [key textures, colors, and details]. The image should be in a 16:9 aspect ratio, landscape orientation."

Design Rules:
- Use vibrant, eye-catching visuals and keep the thumbnail clean, minimal, and non-cluttered.
- Clearly highlight the main subject relevant to the video.
- Use bold, readable text with proper contrast (mention color, style, and placement).
- Suggest background colors, theme, and objects to make the design visually appealing.
- Include stickers, emojis, or logos only if necessary.
- All other uploaded images must be incorporated into the thumbnail unless stated otherwise.
- Also describe if image contain a face, priority should be given to facial features.`

// Enhancer rewrites a free-text prompt into a structured thumbnail design
// brief via the OpenAI-compatible chat completions surface.
type Enhancer struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	log        *slog.Logger
}

func NewEnhancer(cfg config.Config, log *slog.Logger) *Enhancer {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &Enhancer{
		apiKey:  cfg.GeminiAPIKey,
		baseURL: strings.TrimRight(cfg.GeminiBaseURL, "/"),
		model:   cfg.TextModel,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Enhance rewrites the prompt, telling the model how many reference images
// are attached so it can work them into the design.
func (e *Enhancer) Enhance(ctx context.Context, prompt string, imageCount int) (string, error) {
	system := enhancerSystemPrompt
	if imageCount > 0 {
		system += fmt.Sprintf("\n- Also, integrate the %d uploaded images seamlessly within the thumbnail design.", imageCount)
	}
	system += "\n\nOutput must only describe the thumbnail design - no greetings, no extra explanations."

	payload := chatCompletionRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	endpoint := e.baseURL + "/v1beta/openai/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post chat completions: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		if e.log != nil {
			e.log.Error("prompt enhancement failed", "status", resp.StatusCode, "model", e.model, "body", truncateBody(rawBody))
		}
		return "", fmt.Errorf("enhance prompt: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w (body=%s)", err, truncateBody(rawBody))
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty enhanced prompt")
	}
	return content, nil
}
