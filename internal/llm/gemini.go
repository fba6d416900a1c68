package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	app_errors "study-buddy/backend/internal/errors"
	"study-buddy/backend/internal/model"
)

const (
	defaultTemperature = 0.7
	deepThinkingBudget = 32768
)

// GeminiModels names the model used for each kind of request.
type GeminiModels struct {
	Text  string // fast and search modes
	Deep  string // deep-reasoning mode
	Image string // generation from scratch
	Edit  string // edits of an existing image
}

// KeySource returns the API key to use. It is consulted at construction and
// again on every Reauthorize.
type KeySource func() (string, error)

// GeminiProvider talks to the Gemini API through google.golang.org/genai.
type GeminiProvider struct {
	models    GeminiModels
	keySource KeySource
	limiter   *rate.Limiter

	mu     sync.RWMutex
	client *genai.Client
}

// NewGeminiProvider builds a provider on google.golang.org/genai. A missing
// key is not fatal: every call then fails with a config-kind error until
// Reauthorize finds one.
func NewGeminiProvider(ctx context.Context, models GeminiModels, keySource KeySource, requestsPerMinute int) (*GeminiProvider, error) {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	p := &GeminiProvider{
		models:    models,
		keySource: keySource,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 5),
	}
	if err := p.Reauthorize(ctx); err != nil && app_errors.KindOf(err) != app_errors.KindConfig {
		return nil, err
	}
	return p, nil
}

// Reauthorize fetches a fresh key and swaps the client.
func (p *GeminiProvider) Reauthorize(ctx context.Context) error {
	key, err := p.keySource()
	if err != nil {
		return app_errors.NewGenerationError(app_errors.KindConfig, "reauthorize", err)
	}
	if key == "" {
		slog.Warn("No Gemini API key configured; generation is disabled until one is provided.")
		return app_errors.NewGenerationError(app_errors.KindConfig, "reauthorize", app_errors.ErrMissingCredential)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return app_errors.NewGenerationError(app_errors.KindConfig, "reauthorize", err)
	}
	p.mu.Lock()
	p.client = client
	p.mu.Unlock()
	slog.Info("Gemini client configured.")
	return nil
}

func (p *GeminiProvider) currentClient(ctx context.Context, op string) (*genai.Client, error) {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()
	if client == nil {
		return nil, app_errors.NewGenerationError(app_errors.KindConfig, op, app_errors.ErrMissingCredential)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, app_errors.NewGenerationError(app_errors.KindUnknown, op, err)
	}
	return client, nil
}

// Ping reports whether a client is configured. It does not call the API.
func (p *GeminiProvider) Ping(_ context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.client == nil {
		return app_errors.NewGenerationError(app_errors.KindConfig, "ping", app_errors.ErrMissingCredential)
	}
	return nil
}

func (p *GeminiProvider) StreamChat(ctx context.Context, req *ChatRequest) iter.Seq2[model.Fragment, error] {
	return func(yield func(model.Fragment, error) bool) {
		const op = "stream chat"
		client, err := p.currentClient(ctx, op)
		if err != nil {
			yield(model.Fragment{}, err)
			return
		}
		contents, err := buildContents(req)
		if err != nil {
			yield(model.Fragment{}, app_errors.NewGenerationError(app_errors.KindUnknown, op, err))
			return
		}
		modelName, cfg := p.chatConfig(req)

		for resp, err := range client.Models.GenerateContentStream(ctx, modelName, contents, cfg) {
			if err != nil {
				yield(model.Fragment{}, classifyError(op, err))
				return
			}
			if reason := blockReason(resp); reason != "" {
				yield(model.Fragment{}, app_errors.NewGenerationError(app_errors.KindSafety, op, errors.New(reason)))
				return
			}
			frag := model.Fragment{Text: responseText(resp), Links: groundingLinks(resp)}
			if !yield(frag, nil) {
				return
			}
		}
	}
}

// chatConfig picks the model and generation options for a mode. Deep
// reasoning is skipped for image turns, which go to the fast model.
func (p *GeminiProvider) chatConfig(req *ChatRequest) (string, *genai.GenerateContentConfig) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](defaultTemperature),
	}
	if req.Instruction != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.Instruction}}}
	}
	modelName := p.models.Text
	switch req.Mode {
	case model.ModeSearch:
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	case model.ModeDeep:
		if req.Image == "" {
			modelName = p.models.Deep
			cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](deepThinkingBudget)}
		}
	}
	return modelName, cfg
}

func buildContents(req *ChatRequest) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, m := range req.History {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := "user"
		if m.Role == model.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: m.Content}}})
	}

	parts := []*genai.Part{{Text: req.Prompt}}
	if req.Image != "" {
		data, mime, err := decodeImage(req.Image)
		if err != nil {
			return nil, err
		}
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: mime, Data: data}})
	}
	contents = append(contents, &genai.Content{Role: "user", Parts: parts})
	return contents, nil
}

// responseText concatenates the visible text parts of the first candidate.
// Thought summaries are not part of the answer.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

func groundingLinks(resp *genai.GenerateContentResponse) []model.GroundingLink {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	meta := resp.Candidates[0].GroundingMetadata
	if meta == nil {
		return nil
	}
	var links []model.GroundingLink
	for _, chunk := range meta.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		title := chunk.Web.Title
		if title == "" {
			title = chunk.Web.URI
		}
		links = append(links, model.GroundingLink{URI: chunk.Web.URI, Title: title})
	}
	return links
}

func blockReason(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	if fb := resp.PromptFeedback; fb != nil {
		if reason := string(fb.BlockReason); reason != "" && reason != "BLOCKED_REASON_UNSPECIFIED" {
			return "prompt blocked: " + reason
		}
	}
	if len(resp.Candidates) > 0 && string(resp.Candidates[0].FinishReason) == "SAFETY" {
		return "response blocked by safety filters"
	}
	return ""
}

func (p *GeminiProvider) GenerateImage(ctx context.Context, cfg *model.ImageConfig) (string, error) {
	if cfg.IsEdit() {
		return p.editImage(ctx, cfg)
	}
	const op = "generate image"
	client, err := p.currentClient(ctx, op)
	if err != nil {
		return "", err
	}
	prompt := fmt.Sprintf("%s. %s Educational, clear and well labelled.", cfg.Prompt, cfg.DescribeFacets())
	resp, err := client.Models.GenerateImages(ctx, p.models.Image, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    cfg.AspectRatio,
	})
	if err != nil {
		return "", classifyError(op, err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil || len(resp.GeneratedImages[0].Image.ImageBytes) == 0 {
		reason := "no image was returned"
		if len(resp.GeneratedImages) > 0 && resp.GeneratedImages[0].RAIFilteredReason != "" {
			reason = resp.GeneratedImages[0].RAIFilteredReason
		}
		return "", app_errors.NewGenerationError(app_errors.KindSafety, op, errors.New(reason))
	}
	img := resp.GeneratedImages[0].Image
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return EncodeDataURL(mime, img.ImageBytes), nil
}

func (p *GeminiProvider) editImage(ctx context.Context, cfg *model.ImageConfig) (string, error) {
	const op = "edit image"
	client, err := p.currentClient(ctx, op)
	if err != nil {
		return "", err
	}
	data, mime, err := decodeImage(cfg.SourceImage)
	if err != nil {
		return "", app_errors.NewGenerationError(app_errors.KindUnknown, op, err)
	}
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mime, Data: data}},
			{Text: fmt.Sprintf("Edit this image: %s. Keep the aspect ratio %s. %s", cfg.Prompt, cfg.AspectRatio, cfg.DescribeFacets())},
		},
	}}
	resp, err := client.Models.GenerateContent(ctx, p.models.Edit, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	})
	if err != nil {
		return "", classifyError(op, err)
	}
	if reason := blockReason(resp); reason != "" {
		return "", app_errors.NewGenerationError(app_errors.KindSafety, op, errors.New(reason))
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return EncodeDataURL(part.InlineData.MIMEType, part.InlineData.Data), nil
			}
		}
	}
	return "", app_errors.NewGenerationError(app_errors.KindUnknown, op, errors.New("the model returned no image"))
}

func (p *GeminiProvider) Suggest(ctx context.Context, req *SuggestRequest) ([]string, error) {
	const op = "suggest"
	client, err := p.currentClient(ctx, op)
	if err != nil {
		return nil, err
	}
	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: suggestionPrompt(req)}}}}
	resp, err := client.Models.GenerateContent(ctx, p.models.Text, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
	})
	if err != nil {
		return nil, classifyError(op, err)
	}
	count := req.Count
	if count <= 0 {
		count = 3
	}
	return parseSuggestions(responseText(resp), count)
}
