package coach

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/opensource-finance/finch/internal/domain"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash-lite"

// GeminiModel implements Model on the Gemini API.
type GeminiModel struct {
	client *genai.Client
	model  string
}

// NewGeminiModel creates a Gemini client for the given API key.
func NewGeminiModel(ctx context.Context, apiKey, model string) (*GeminiModel, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if model == "" {
		model = DefaultModelName
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiModel{client: client, model: model}, nil
}

// Generate runs one prompt under a system instruction.
func (m *GeminiModel) Generate(ctx context.Context, systemInstruction, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if systemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// NewGemini builds a coach on Gemini from configuration.
func NewGemini(ctx context.Context, cfg domain.CoachConfig) (*LLMCoach, error) {
	model, err := NewGeminiModel(ctx, cfg.APIKey, cfg.Model)
	if err != nil {
		return nil, err
	}
	return NewLLMCoach(model, cfg.HistoryTurns), nil
}
