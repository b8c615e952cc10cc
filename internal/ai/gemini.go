package ai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiProvider calls the Gemini API through the genai SDK.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: GEMINI_API_KEY is not set")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

// toGeminiContents splits system turns into the system instruction and maps the
// remaining turns to user/model contents.
func toGeminiContents(messages []Message) ([]*genai.Content, *genai.GenerateContentConfig) {
	var contents []*genai.Content
	var cfg *genai.GenerateContentConfig
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			cfg = &genai.GenerateContentConfig{
				SystemInstruction: genai.NewContentFromText(m.Content, genai.RoleUser),
			}
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return contents, cfg
}

func (p *GeminiProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	contents, cfg := toGeminiContents(messages)
	res, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	return res.Text(), nil
}

func (p *GeminiProvider) StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		contents, cfg := toGeminiContents(messages)
		for res, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, cfg) {
			if err != nil {
				errs <- fmt.Errorf("gemini: stream: %w", err)
				return
			}
			if text := res.Text(); text != "" && !send(ctx, chunks, text) {
				errs <- ctx.Err()
				return
			}
		}
	}()

	return chunks, errs
}
