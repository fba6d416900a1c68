package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"study-buddy/backend/internal/model"
)

// Provider is the generation collaborator. Implementations classify their
// failures with app_errors.NewGenerationError so callers can branch on kind.
type Provider interface {
	// StreamChat yields fragments in arrival order. A non-nil error ends the
	// sequence.
	StreamChat(ctx context.Context, req *ChatRequest) iter.Seq2[model.Fragment, error]
	// GenerateImage returns the produced image as a data URL.
	GenerateImage(ctx context.Context, cfg *model.ImageConfig) (string, error)
	// Suggest returns short suggestion strings.
	Suggest(ctx context.Context, req *SuggestRequest) ([]string, error)
}

// Reauthorizer is implemented by providers that can pick up new credentials
// after a quota or authorization failure.
type Reauthorizer interface {
	Reauthorize(ctx context.Context) error
}

// ChatRequest is one streaming turn.
type ChatRequest struct {
	Prompt      string
	History     []model.Message
	Mode        model.Mode
	Image       string // data URL or raw base64, optional
	Instruction string
}

// SuggestionKind selects the suggestion prompt.
type SuggestionKind int

const (
	SuggestReplies SuggestionKind = iota
	SuggestVisuals
)

// SuggestRequest asks for Count short suggestions.
type SuggestRequest struct {
	Kind    SuggestionKind
	History []model.Message
	Draft   string
	Count   int
}

// suggestionPrompt renders the request as a single user prompt shared by all
// backends.
func suggestionPrompt(req *SuggestRequest) string {
	count := req.Count
	if count <= 0 {
		count = 3
	}
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, m := range req.History {
		content := truncate(strings.TrimSpace(m.Content), 300)
		if content == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, content)
	}
	switch req.Kind {
	case SuggestVisuals:
		if draft := strings.TrimSpace(req.Draft); draft != "" {
			fmt.Fprintf(&b, "\nThe student is describing a visual: %q\n", draft)
		}
		fmt.Fprintf(&b, "\nSuggest %d short ideas (under 12 words each) for an educational diagram or illustration that would help with this topic.", count)
	default:
		fmt.Fprintf(&b, "\nSuggest %d short replies (under 8 words each) the student might send next.", count)
	}
	b.WriteString(" Respond with a JSON array of strings only.")
	return b.String()
}

// parseSuggestions decodes a JSON array of strings, tolerating a surrounding
// markdown code fence. Blank entries are dropped and at most n are returned.
func parseSuggestions(text string, n int) ([]string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var raw []string
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("could not decode suggestions: %w", err)
	}
	out := make([]string, 0, n)
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == n {
			break
		}
	}
	return out, nil
}

// truncate shortens a string to a specified number of runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
