package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Provider defines the interface for LLM-backed project generation
type Provider interface {
	// GenerateProject turns a natural-language site description into a set of
	// project files (a single HTML page or a React scaffold)
	GenerateProject(ctx context.Context, params GenerateParams) (*GeneratedProject, error)
}

// ProjectKind selects the shape of the generated project
type ProjectKind string

const (
	KindHTML  ProjectKind = "html"  // Single self-contained index.html
	KindReact ProjectKind = "react" // Multi-file Vite/React scaffold
)

// Valid checks if the project kind is valid
func (k ProjectKind) Valid() bool {
	switch k {
	case KindHTML, KindReact:
		return true
	default:
		return false
	}
}

// GenerateParams contains parameters for project generation
type GenerateParams struct {
	Prompt    string      // Natural-language description of the site
	Kind      ProjectKind // html or react
	AccountID uuid.UUID   // Account ID for usage tracking
}

// ProjectFile is a single generated file
type ProjectFile struct {
	Path    string // Relative path within the project (e.g., "src/App.jsx")
	Content string // File content
}

// GeneratedProject is the complete output of a generation request
type GeneratedProject struct {
	Kind  ProjectKind   // Kind that was generated
	Files []ProjectFile // All project files, paths unique
	Usage UsageInfo     // Token usage and timing information
}

// File returns the content of the named file and whether it exists.
func (p *GeneratedProject) File(path string) (string, bool) {
	for _, f := range p.Files {
		if f.Path == path {
			return f.Content, true
		}
	}
	return "", false
}

// UsageInfo tracks provider usage for monitoring
type UsageInfo struct {
	Model        string        // Model used
	InputTokens  int           // Tokens in the request
	OutputTokens int           // Tokens in the response
	Duration     time.Duration // Request duration
}

// MaxPromptLength bounds the user prompt; anything longer is rejected before
// a request is made.
const MaxPromptLength = 4000

// ProviderConfig contains common configuration for providers
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for provider operations
var (
	// EAIRateLimit indicates the API rate limit has been exceeded
	EAIRateLimit = errors.New("ai provider rate limit exceeded")

	// EAIInvalidPrompt indicates the prompt is empty or too long
	EAIInvalidPrompt = errors.New("invalid generation prompt")

	// EAIBadOutput indicates the model returned output that does not form a
	// usable project
	EAIBadOutput = errors.New("ai provider returned unusable output")

	// EAITimeout indicates the request timed out
	EAITimeout = errors.New("ai request timed out")

	// EAIUnavailable indicates the AI service is temporarily unavailable
	EAIUnavailable = errors.New("ai service temporarily unavailable")

	// EAIUnauthorized indicates invalid API credentials
	EAIUnauthorized = errors.New("ai provider authentication failed")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, EAIRateLimit) ||
		errors.Is(err, EAITimeout) ||
		errors.Is(err, EAIUnavailable)
}

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}
