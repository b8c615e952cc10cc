package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaModel   = "llama3:latest"
)

// OllamaProvider talks to a local Ollama server over /api/chat.
type OllamaProvider struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		// no client timeout: the caller's context bounds both plain and streamed calls
		Client: &http.Client{Transport: &http.Transport{ResponseHeaderTimeout: 90 * time.Second}},
	}
}

type ollamaMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatReq struct {
	Model    string      `json:"model"`
	Messages []ollamaMsg `json:"messages"`
	Stream   bool        `json:"stream"`
}

// one JSON object per line when streaming, a single object otherwise
type ollamaChatResp struct {
	Message ollamaMsg `json:"message"`
	Done    bool      `json:"done"`
	Error   string    `json:"error,omitempty"`
}

func (p *OllamaProvider) post(ctx context.Context, messages []Message, stream bool) (*http.Response, error) {
	if p.Client == nil {
		return nil, errors.New("ollama: http client is nil")
	}

	msgs := make([]ollamaMsg, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, ollamaMsg{Role: m.Role, Content: m.Content})
	}
	b, err := json.Marshal(ollamaChatReq{Model: p.Model, Messages: msgs, Stream: stream})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/api/chat", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return resp, nil
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	resp, err := p.post(ctx, messages, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var decoded ollamaChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("ollama: decode: %w", err)
	}
	if decoded.Error != "" {
		return "", errors.New("ollama: " + decoded.Error)
	}
	return decoded.Message.Content, nil
}

func (p *OllamaProvider) StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		resp, err := p.post(ctx, messages, true)
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}
			var decoded ollamaChatResp
			if err := json.Unmarshal(line, &decoded); err != nil {
				errs <- fmt.Errorf("ollama: decode chunk: %w", err)
				return
			}
			if decoded.Error != "" {
				errs <- errors.New("ollama: " + decoded.Error)
				return
			}
			if decoded.Message.Content != "" && !send(ctx, chunks, decoded.Message.Content) {
				errs <- ctx.Err()
				return
			}
			if decoded.Done {
				return
			}
		}
		if err := sc.Err(); err != nil {
			errs <- err
		}
	}()

	return chunks, errs
}
