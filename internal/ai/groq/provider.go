package groq

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

	"github.com/devro-ai/devro/internal/ai"
)

const (
	// APIBaseURL is the Groq OpenAI-compatible chat completions endpoint
	APIBaseURL = "https://api.groq.com/openai/v1/chat/completions"

	// DefaultModel is the default model to use
	DefaultModel = "llama-3.3-70b-versatile"

	// MaxOutputTokens caps the completion length. React scaffolds are the
	// largest output and fit comfortably under this.
	MaxOutputTokens = 8192
)

// Config contains configuration for the Groq provider
type Config struct {
	APIKey         string
	Model          string
	ProviderConfig ai.ProviderConfig
}

// Provider implements the ai.Provider interface using Groq's chat completions API
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a new Groq provider
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("groq API key is required")
	}

	// Set defaults
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.ProviderConfig.MaxRetries == 0 {
		config.ProviderConfig.MaxRetries = 3
	}
	if config.ProviderConfig.RetryBaseDelay == 0 {
		config.ProviderConfig.RetryBaseDelay = 1 * time.Second
	}
	if config.ProviderConfig.RequestTimeout == 0 {
		config.ProviderConfig.RequestTimeout = 120 * time.Second
	}

	return &Provider{
		config: config,
		client: &http.Client{
			Timeout: config.ProviderConfig.RequestTimeout,
		},
		logger: logger,
	}, nil
}

// GenerateProject generates a project from a natural-language description
func (p *Provider) GenerateProject(ctx context.Context, params ai.GenerateParams) (*ai.GeneratedProject, error) {
	startTime := time.Now()

	if err := validateParams(params); err != nil {
		return nil, ai.WrapError("generate project", err)
	}

	body, err := p.buildRequestBody(params)
	if err != nil {
		return nil, ai.WrapError("build request", err)
	}

	resp, err := p.executeWithRetry(ctx, body)
	if err != nil {
		return nil, ai.WrapError("execute request", err)
	}

	project, err := parseProject(resp, params.Kind)
	if err != nil {
		return nil, ai.WrapError("parse response", err)
	}

	project.Usage = ai.UsageInfo{
		Model:        p.config.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Duration:     time.Since(startTime),
	}

	p.logger.Info("project generated",
		"account_id", params.AccountID,
		"kind", params.Kind,
		"files", len(project.Files),
		"input_tokens", project.Usage.InputTokens,
		"output_tokens", project.Usage.OutputTokens,
		"duration", project.Usage.Duration,
	)

	return project, nil
}

// validateParams validates the generation parameters
func validateParams(params ai.GenerateParams) error {
	if strings.TrimSpace(params.Prompt) == "" {
		return ai.EAIInvalidPrompt
	}
	if len(params.Prompt) > ai.MaxPromptLength {
		return fmt.Errorf("%w: prompt length %d exceeds maximum %d", ai.EAIInvalidPrompt, len(params.Prompt), ai.MaxPromptLength)
	}
	if !params.Kind.Valid() {
		return fmt.Errorf("%w: unknown project kind %q", ai.EAIInvalidPrompt, params.Kind)
	}
	return nil
}

// buildRequestBody builds the JSON request body for a generation
func (p *Provider) buildRequestBody(params ai.GenerateParams) ([]byte, error) {
	var userPrompt string
	switch params.Kind {
	case ai.KindReact:
		userPrompt = buildReactPrompt(params.Prompt)
	default:
		userPrompt = buildHTMLPrompt(params.Prompt)
	}

	reqBody := apiRequest{
		Model:     p.config.Model,
		MaxTokens: MaxOutputTokens,
		Messages: []apiMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: &apiResponseFormat{Type: "json_object"},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return bodyBytes, nil
}

// executeWithRetry executes the request with exponential backoff retry. The
// request is rebuilt from the body bytes on every attempt so a consumed body
// never poisons a retry.
func (p *Provider) executeWithRetry(ctx context.Context, body []byte) (*apiResponse, error) {
	var lastErr error

	for attempt := 1; attempt <= p.config.ProviderConfig.MaxRetries; attempt++ {
		resp, err := p.executeRequest(ctx, body)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		// Only retry on retryable errors
		if !ai.IsRetryable(err) {
			return nil, err
		}

		// Don't retry if we've exhausted attempts
		if attempt >= p.config.ProviderConfig.MaxRetries {
			break
		}

		// Exponential backoff: base * 2^(attempt-1)
		delay := p.config.ProviderConfig.RetryBaseDelay * time.Duration(1<<(attempt-1))
		p.logger.Info("retrying generation request", "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// executeRequest executes a single HTTP request
func (p *Provider) executeRequest(ctx context.Context, body []byte) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", APIBaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Network errors are typically retryable
		return nil, ai.EAIUnavailable
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(resp.StatusCode, bodyBytes)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &apiResp, nil
}

// mapHTTPError maps HTTP status codes to provider errors
func mapHTTPError(statusCode int, body []byte) error {
	var errResp apiErrorResponse
	_ = json.Unmarshal(body, &errResp)

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ai.EAIUnauthorized
	case http.StatusTooManyRequests:
		return ai.EAIRateLimit
	case http.StatusRequestTimeout:
		return ai.EAITimeout
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ai.EAIInvalidPrompt, errResp.Error.Message)
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return ai.EAIUnavailable
	default:
		return fmt.Errorf("API error (status %d): %s", statusCode, errResp.Error.Message)
	}
}

// parseProject parses the completion into a validated project
func parseProject(resp *apiResponse, kind ai.ProjectKind) (*ai.GeneratedProject, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices", ai.EAIBadOutput)
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return nil, fmt.Errorf("%w: empty completion", ai.EAIBadOutput)
	}

	var output projectOutput
	if err := json.Unmarshal([]byte(content), &output); err != nil {
		return nil, fmt.Errorf("%w: %v", ai.EAIBadOutput, err)
	}

	project := &ai.GeneratedProject{
		Kind:  kind,
		Files: make([]ai.ProjectFile, 0, len(output.Files)),
	}
	seen := make(map[string]bool, len(output.Files))
	for _, f := range output.Files {
		path := strings.TrimPrefix(strings.TrimSpace(f.Path), "./")
		if path == "" || f.Content == "" {
			continue
		}
		// Reject path traversal and absolute paths outright.
		if strings.HasPrefix(path, "/") || strings.Contains(path, "..") {
			return nil, fmt.Errorf("%w: unsafe file path %q", ai.EAIBadOutput, f.Path)
		}
		if seen[path] {
			continue
		}
		seen[path] = true
		project.Files = append(project.Files, ai.ProjectFile{Path: path, Content: f.Content})
	}

	if err := validateProject(project); err != nil {
		return nil, err
	}
	return project, nil
}

// validateProject enforces the per-kind output contract
func validateProject(project *ai.GeneratedProject) error {
	switch project.Kind {
	case ai.KindHTML:
		html, ok := project.File("index.html")
		if !ok {
			return fmt.Errorf("%w: missing index.html", ai.EAIBadOutput)
		}
		// A page with no <style> block means the model ignored the inline-CSS
		// requirement and the result renders unstyled.
		if !strings.Contains(strings.ToLower(html), "<style") {
			return fmt.Errorf("%w: index.html has no style block", ai.EAIBadOutput)
		}
	case ai.KindReact:
		for _, required := range []string{"package.json", "index.html", "src/main.jsx", "src/App.jsx"} {
			if _, ok := project.File(required); !ok {
				return fmt.Errorf("%w: missing %s", ai.EAIBadOutput, required)
			}
		}
	}
	if len(project.Files) == 0 {
		return fmt.Errorf("%w: no files", ai.EAIBadOutput)
	}
	return nil
}

// API request/response types (OpenAI chat completions shape)

type apiRequest struct {
	Model          string             `json:"model"`
	MaxTokens      int                `json:"max_tokens"`
	Messages       []apiMessage       `json:"messages"`
	ResponseFormat *apiResponseFormat `json:"response_format,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponseFormat struct {
	Type string `json:"type"`
}

type apiResponse struct {
	ID      string      `json:"id"`
	Model   string      `json:"model"`
	Choices []apiChoice `json:"choices"`
	Usage   apiUsage    `json:"usage"`
}

type apiChoice struct {
	Index        int        `json:"index"`
	Message      apiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// projectOutput mirrors the JSON structure the system prompt instructs the
// model to return.
type projectOutput struct {
	Files []projectOutputFile `json:"files"`
}

type projectOutputFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
