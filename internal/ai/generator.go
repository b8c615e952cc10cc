package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pentabot/backend/internal/apperr"
	"go.uber.org/zap"
)

// FormattingInstruction asks the model to label its reply with exactly one of
// PARAGRAPHS, POINTS or UNCLEAR.
const FormattingInstruction = `Analyze only the current input and provide a single, focused response labeled with exactly one type:
- Use 'PARAGRAPHS' (and nothing else) for narrative, explanatory, or creative content. Example: 'write a poem' → 'PARAGRAPHS: The moon rises gently... Stars twinkle...'. Format each sentence or natural line on a new line.
- Use 'POINTS' (and nothing else) for counting, greetings, or lists. Example: 'write counting from 1 to 5' → 'POINTS: 1. One. 2. Two...'. Format each item on a new line, with sentences within items separated by new lines after full stops.
- Use 'UNCLEAR' (and nothing else) if the input is unclear or irrelevant. Example: 'random stuff' → 'UNCLEAR: Please provide a clear request...'.
- Include only the labeled content (e.g., 'PARAGRAPHS:', 'POINTS:', 'UNCLEAR:') followed by the response. Do not mix formats or add unrelated text. Keep responses concise and directly relevant to the input.`

var ErrEmptyReply = errors.New("empty response from AI provider")

type GenerateRequest struct {
	Prompt      string
	Instruction string
	// History holds prior turns, oldest first. Empty in stateless mode.
	History []Message
}

func (r GenerateRequest) messages() []Message {
	out := make([]Message, 0, len(r.History)+1)
	out = append(out, r.History...)
	text := r.Prompt
	if r.Instruction != "" {
		text += "\n" + r.Instruction
	}
	return append(out, Message{Role: RoleUser, Content: text})
}

type GeneratorConfig struct {
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

// Generator wraps a Provider with a per-call timeout and bounded retries.
// Every failure it returns is an apperr generation error.
type Generator struct {
	provider Provider
	cfg      GeneratorConfig
	log      *zap.Logger
}

func NewGenerator(p Provider, cfg GeneratorConfig, log *zap.Logger) *Generator {
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	return &Generator{provider: p, cfg: cfg, log: log}
}

func (g *Generator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.cfg.Timeout)
}

func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= g.cfg.Retries; attempt++ {
		if attempt > 0 {
			wait := g.cfg.Backoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return "", generationError(ctx.Err())
			case <-time.After(wait):
			}
		}

		text, err := g.once(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		g.log.Warn("generation attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	return "", generationError(lastErr)
}

func (g *Generator) once(ctx context.Context, req GenerateRequest) (string, error) {
	cctx, cancel := g.withTimeout(ctx)
	defer cancel()

	text, err := g.provider.Chat(cctx, req.messages())
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

// GenerateStream calls onChunk with each fragment in arrival order and returns the
// concatenated text. Providers without streaming deliver one chunk. Streams are not retried.
func (g *Generator) GenerateStream(ctx context.Context, req GenerateRequest, onChunk func(string)) (string, error) {
	sp, ok := g.provider.(StreamProvider)
	if !ok {
		text, err := g.Generate(ctx, req)
		if err == nil && onChunk != nil {
			onChunk(text)
		}
		return text, err
	}

	cctx, cancel := g.withTimeout(ctx)
	defer cancel()

	chunks, errs := sp.StreamChat(cctx, req.messages())
	var b strings.Builder
	for c := range chunks {
		b.WriteString(c)
		if onChunk != nil {
			onChunk(c)
		}
	}
	if err := <-errs; err != nil {
		return "", generationError(err)
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", generationError(ErrEmptyReply)
	}
	return b.String(), nil
}

func generationError(err error) error {
	msg := "AI generation failed"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		msg = "AI generation timed out"
	case errors.Is(err, ErrEmptyReply):
		msg = "Empty response from AI provider"
	}
	return apperr.Generation(msg, err)
}
