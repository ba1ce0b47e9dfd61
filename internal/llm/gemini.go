package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mesbot/dispatch/internal/httpkit"
	"github.com/mesbot/dispatch/internal/logging"
)

const geminiAPIBase = "https://generativelanguage.googleapis.com/v1beta/models"

// GeminiClient is a client for the Google Gemini generateContent API.
type GeminiClient struct {
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(apiKey string, logger *slog.Logger) *GeminiClient {
	if logger == nil {
		logger = slog.Default()
	}
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 60 * time.Second
	scopedLogger := logger.With("provider", "gemini")

	return &GeminiClient{
		apiKey: apiKey,
		logger: scopedLogger,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithTransport(t),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(scopedLogger),
		),
	}
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	SystemInstr      *geminiContent   `json:"systemInstruction,omitempty"`
	GenerationConfig *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiGenConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// buildGeminiRequest converts the provider-neutral message list into
// Gemini's contents/systemInstruction shape: a Message with role
// "system" is pulled out as systemInstruction, and "assistant" is
// remapped to Gemini's "model" role.
func buildGeminiRequest(messages []Message, opts Options) geminiRequest {
	req := geminiRequest{
		GenerationConfig: &geminiGenConfig{Temperature: opts.Temperature},
	}
	if opts.JSONMode {
		req.GenerationConfig.ResponseMIMEType = "application/json"
	}
	for _, m := range messages {
		if m.Role == "system" {
			req.SystemInstr = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
			continue
		}
		role := "user"
		if m.Role == "assistant" || m.Role == "model" {
			role = "model"
		}
		req.Contents = append(req.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	return req
}

// extractGeminiText concatenates every part of the first candidate,
// Gemini's usual shape for a non-streaming text completion.
func extractGeminiText(gr geminiResponse) string {
	if len(gr.Candidates) == 0 {
		return ""
	}
	var text string
	for _, p := range gr.Candidates[0].Content.Parts {
		text += p.Text
	}
	return text
}

// Chat sends a non-streaming generateContent request. Gemini has no
// tool-calling surface wired here: the pipeline that drives this client
// only needs plain-text completions, optionally in strict-JSON mode.
func (c *GeminiClient) Chat(ctx context.Context, model string, messages []Message, opts Options) (*ChatResponse, error) {
	req := buildGeminiRequest(messages, opts)

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	c.logger.Log(ctx, logging.LevelTrace, "request payload", "json", string(jsonData))

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", geminiAPIBase, model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return nil, fmt.Errorf("gemini API error %d: %s", resp.StatusCode, errBody)
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(gr.Candidates) == 0 {
		return &ChatResponse{Model: model, CreatedAt: time.Now(), Done: true}, nil
	}

	text := extractGeminiText(gr)

	result := &ChatResponse{
		Model:        model,
		CreatedAt:    time.Now(),
		Message:      Message{Role: "assistant", Content: text},
		Done:         true,
		InputTokens:  gr.UsageMetadata.PromptTokenCount,
		OutputTokens: gr.UsageMetadata.CandidatesTokenCount,
	}
	c.logger.Debug("response received",
		"model", result.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
	)
	c.logger.Log(ctx, logging.LevelTrace, "response content", "content", result.Message.Content)
	return result, nil
}

// ChatStream has no streaming transport for Gemini wired in; it falls
// back to a single non-streaming call and delivers the whole response
// to callback at once.
func (c *GeminiClient) ChatStream(ctx context.Context, model string, messages []Message, opts Options, callback StreamCallback) (*ChatResponse, error) {
	resp, err := c.Chat(ctx, model, messages, opts)
	if err != nil {
		return nil, err
	}
	if callback != nil && resp.Message.Content != "" {
		callback(resp.Message.Content)
	}
	return resp, nil
}

// Ping sends a minimal generateContent request to verify the API key.
func (c *GeminiClient) Ping(ctx context.Context) error {
	_, err := c.Chat(ctx, "gemini-1.5-flash", []Message{{Role: "user", Content: "ping"}}, Options{})
	return err
}
