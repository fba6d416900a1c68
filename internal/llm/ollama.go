package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	app_errors "study-buddy/backend/internal/errors"
	"study-buddy/backend/internal/model"
)

// OllamaProvider serves text turns and suggestions from a local Ollama
// server. It cannot produce images.
type OllamaProvider struct {
	client *http.Client
	url    string
	model  string
}

func NewOllamaProvider(url, modelName string) *OllamaProvider {
	return &OllamaProvider{
		client: &http.Client{},
		url:    strings.TrimRight(url, "/"),
		model:  modelName,
	}
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"` // "json" constrains the reply to valid JSON
}

type ollamaChatChunk struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

func (p *OllamaProvider) chatMessages(req *ChatRequest) ([]ollamaMessage, error) {
	msgs := make([]ollamaMessage, 0, len(req.History)+2)
	if req.Instruction != "" {
		msgs = append(msgs, ollamaMessage{Role: "system", Content: req.Instruction})
	}
	for _, m := range req.History {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		msgs = append(msgs, ollamaMessage{Role: string(m.Role), Content: m.Content})
	}
	current := ollamaMessage{Role: "user", Content: req.Prompt}
	if req.Image != "" {
		data, _, err := decodeImage(req.Image)
		if err != nil {
			return nil, err
		}
		current.Images = []string{base64.StdEncoding.EncodeToString(data)}
	}
	return append(msgs, current), nil
}

// post sends a JSON body to an Ollama endpoint and returns the response for
// a 200 status. Other statuses are classified and returned as errors.
func (p *OllamaProvider) post(ctx context.Context, op, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, app_errors.NewGenerationError(app_errors.KindUnknown, op, fmt.Errorf("could not marshal request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, app_errors.NewGenerationError(app_errors.KindUnknown, op, fmt.Errorf("could not create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(op, fmt.Errorf("request failed: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		apiErr := fmt.Errorf("api returned non-200 status %d: %s", resp.StatusCode, string(bodyBytes))
		kind := kindForStatus(resp.StatusCode, "")
		if kind == app_errors.KindUnknown {
			kind = kindFromMessage(string(bodyBytes))
		}
		return nil, app_errors.NewGenerationError(kind, op, apiErr)
	}
	return resp, nil
}

func (p *OllamaProvider) StreamChat(ctx context.Context, req *ChatRequest) iter.Seq2[model.Fragment, error] {
	return func(yield func(model.Fragment, error) bool) {
		const op = "stream chat"
		msgs, err := p.chatMessages(req)
		if err != nil {
			yield(model.Fragment{}, app_errors.NewGenerationError(app_errors.KindUnknown, op, err))
			return
		}
		resp, err := p.post(ctx, op, "/api/chat", ollamaChatRequest{Model: p.model, Messages: msgs, Stream: true})
		if err != nil {
			yield(model.Fragment{}, err)
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var chunk ollamaChatChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				yield(model.Fragment{}, app_errors.NewGenerationError(app_errors.KindUnknown, op, fmt.Errorf("failed to decode stream chunk: %w", err)))
				return
			}
			if chunk.Error != "" {
				yield(model.Fragment{}, classifyError(op, errors.New(chunk.Error)))
				return
			}
			if chunk.Message.Content != "" {
				if !yield(model.Fragment{Text: chunk.Message.Content}, nil) {
					return
				}
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(model.Fragment{}, classifyError(op, err))
		}
	}
}

func (p *OllamaProvider) GenerateImage(_ context.Context, _ *model.ImageConfig) (string, error) {
	return "", app_errors.NewGenerationError(app_errors.KindConfig, "generate image",
		errors.New("image generation is not available with the ollama backend"))
}

func (p *OllamaProvider) Suggest(ctx context.Context, req *SuggestRequest) ([]string, error) {
	const op = "suggest"
	resp, err := p.post(ctx, op, "/api/chat", ollamaChatRequest{
		Model:    p.model,
		Messages: []ollamaMessage{{Role: "user", Content: suggestionPrompt(req)}},
		Stream:   false,
		Format:   "json",
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var chunk ollamaChatChunk
	if err := json.NewDecoder(resp.Body).Decode(&chunk); err != nil {
		return nil, app_errors.NewGenerationError(app_errors.KindUnknown, op, fmt.Errorf("could not decode response: %w", err))
	}
	count := req.Count
	if count <= 0 {
		count = 3
	}
	return parseSuggestions(chunk.Message.Content, count)
}

// Ping reports whether the Ollama server answers on its root endpoint.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}
