package ai

import (
	"context"
	"strings"
	"testing"

	"github.com/pentabot/backend/internal/config"
)

func TestRegistry_CaseInsensitiveLookup(t *testing.T) {
	reg := NewRegistry()
	var gotModel string
	reg.Register(" Fake ", func(ctx context.Context, model string) (Provider, error) {
		gotModel = model
		return &scriptedProvider{}, nil
	})

	if _, err := reg.Get(context.Background(), "FAKE", " m1 "); err != nil {
		t.Fatalf("get: %v", err)
	}
	if gotModel != "m1" {
		t.Fatalf("model not trimmed: %q", gotModel)
	}
}

func TestRegistry_UnknownProvider(t *testing.T) {
	reg := NewRegistry()
	reg.Register("a", func(ctx context.Context, model string) (Provider, error) { return &scriptedProvider{}, nil })

	_, err := reg.Get(context.Background(), "b", "")
	if err == nil || !strings.Contains(err.Error(), "known: a") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := config.FromEnv(func(string) string { return "" })
	reg := NewRegistryFromConfig(cfg)

	if got := strings.Join(reg.Names(), ","); got != "gemini,ollama,openai,openrouter" {
		t.Fatalf("unexpected providers %s", got)
	}
	// gemini refuses to start without a key
	if _, err := reg.Get(context.Background(), "gemini", ""); err == nil {
		t.Fatalf("expected missing key error")
	}
	p, err := reg.Get(context.Background(), "ollama", "")
	if err != nil {
		t.Fatalf("ollama: %v", err)
	}
	if o := p.(*OllamaProvider); o.Model != defaultOllamaModel {
		t.Fatalf("unexpected default model %q", o.Model)
	}
}
