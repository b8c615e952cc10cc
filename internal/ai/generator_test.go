package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pentabot/backend/internal/apperr"
	"go.uber.org/zap"
)

type scriptedProvider struct {
	replies []string
	errs    []error
	calls   int
	last    []Message
}

func (p *scriptedProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	i := p.calls
	p.calls++
	p.last = append([]Message(nil), messages...)
	var err error
	if i < len(p.errs) {
		err = p.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(p.replies) {
		return p.replies[i], nil
	}
	return "", nil
}

type streamingProvider struct {
	scriptedProvider
	chunks []string
	err    error
}

func (p *streamingProvider) StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	chunks := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		for _, c := range p.chunks {
			if !send(ctx, chunks, c) {
				return
			}
		}
		if p.err != nil {
			errs <- p.err
		}
	}()
	return chunks, errs
}

type blockingProvider struct{}

func (blockingProvider) Chat(ctx context.Context, _ []Message) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func fastConfig(retries int) GeneratorConfig {
	return GeneratorConfig{Timeout: time.Second, Retries: retries, Backoff: time.Millisecond}
}

func TestGenerate_BuildsPromptWithInstruction(t *testing.T) {
	p := &scriptedProvider{replies: []string{"PARAGRAPHS: hi"}}
	g := NewGenerator(p, fastConfig(0), zap.NewNop())

	got, err := g.Generate(context.Background(), GenerateRequest{Prompt: "write a poem", Instruction: "INSTR"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "PARAGRAPHS: hi" {
		t.Fatalf("unexpected reply %q", got)
	}
	if len(p.last) != 1 || p.last[0].Role != RoleUser || p.last[0].Content != "write a poem\nINSTR" {
		t.Fatalf("unexpected provider input: %+v", p.last)
	}
}

func TestGenerate_HistoryPrecedesPrompt(t *testing.T) {
	p := &scriptedProvider{replies: []string{"ok"}}
	g := NewGenerator(p, fastConfig(0), zap.NewNop())

	history := []Message{{Role: RoleUser, Content: "a"}, {Role: RoleAssistant, Content: "b"}}
	if _, err := g.Generate(context.Background(), GenerateRequest{Prompt: "c", History: history}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(p.last) != 3 || p.last[0].Content != "a" || p.last[1].Role != RoleAssistant || p.last[2].Content != "c" {
		t.Fatalf("unexpected provider input: %+v", p.last)
	}
}

func TestGenerate_RetriesThenSucceeds(t *testing.T) {
	p := &scriptedProvider{
		errs:    []error{errors.New("503"), nil},
		replies: []string{"", "POINTS: 1. One"},
	}
	g := NewGenerator(p, fastConfig(2), zap.NewNop())

	got, err := g.Generate(context.Background(), GenerateRequest{Prompt: "count"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "POINTS: 1. One" || p.calls != 2 {
		t.Fatalf("got %q after %d calls", got, p.calls)
	}
}

func TestGenerate_EmptyReplyIsGenerationFailure(t *testing.T) {
	p := &scriptedProvider{replies: []string{"   ", ""}}
	g := NewGenerator(p, fastConfig(1), zap.NewNop())

	_, err := g.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	if !errors.Is(err, apperr.ErrGeneration) || !errors.Is(err, ErrEmptyReply) {
		t.Fatalf("expected empty-reply generation failure, got %v", err)
	}
	if p.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", p.calls)
	}
	if msg := apperr.Message(err, ""); msg != "Empty response from AI provider" {
		t.Fatalf("unexpected public message %q", msg)
	}
}

func TestGenerate_Timeout(t *testing.T) {
	g := NewGenerator(blockingProvider{}, GeneratorConfig{Timeout: 20 * time.Millisecond}, zap.NewNop())

	_, err := g.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	if !errors.Is(err, apperr.ErrGeneration) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected timeout generation failure, got %v", err)
	}
}

func TestGenerateStream_DeliversChunksInOrder(t *testing.T) {
	p := &streamingProvider{chunks: []string{"PARAGRAPHS: ", "one. ", "two"}}
	g := NewGenerator(p, fastConfig(0), zap.NewNop())

	var seen []string
	got, err := g.GenerateStream(context.Background(), GenerateRequest{Prompt: "x"}, func(s string) {
		seen = append(seen, s)
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if got != "PARAGRAPHS: one. two" {
		t.Fatalf("unexpected text %q", got)
	}
	if strings.Join(seen, "|") != "PARAGRAPHS: |one. |two" {
		t.Fatalf("unexpected chunks %v", seen)
	}
}

func TestGenerateStream_ProviderError(t *testing.T) {
	p := &streamingProvider{chunks: []string{"partial"}, err: errors.New("quota exceeded")}
	g := NewGenerator(p, fastConfig(0), zap.NewNop())

	if _, err := g.GenerateStream(context.Background(), GenerateRequest{Prompt: "x"}, nil); !errors.Is(err, apperr.ErrGeneration) {
		t.Fatalf("expected generation failure, got %v", err)
	}
}

func TestGenerateStream_FallsBackToChat(t *testing.T) {
	p := &scriptedProvider{replies: []string{"UNCLEAR: hm"}}
	g := NewGenerator(p, fastConfig(0), zap.NewNop())

	var seen []string
	got, err := g.GenerateStream(context.Background(), GenerateRequest{Prompt: "x"}, func(s string) { seen = append(seen, s) })
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if got != "UNCLEAR: hm" || len(seen) != 1 || seen[0] != got {
		t.Fatalf("got %q chunks %v", got, seen)
	}
}
