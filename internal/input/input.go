// Package input turns voice transcripts and uploaded files into a pending
// chat turn.
package input

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"study-buddy/backend/internal/llm"
)

// Transcript is one recognition result. Interim results are superseded by
// later ones; only final results are kept.
type Transcript struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// TranscriptSource delivers speech recognition results.
type TranscriptSource interface {
	OnFragment(fn func(Transcript))
	Start(ctx context.Context) error
	Stop() error
}

// Composer holds the text and image of the turn being composed.
type Composer struct {
	mu    sync.Mutex
	text  string
	image string
}

func NewComposer() *Composer {
	return &Composer{}
}

// Listen feeds final transcripts from src into the composer and starts it.
func (c *Composer) Listen(ctx context.Context, src TranscriptSource) error {
	src.OnFragment(c.AddTranscript)
	return src.Start(ctx)
}

// AddTranscript appends a final transcript, separated from existing text by
// a space. Interim transcripts are ignored.
func (c *Composer) AddTranscript(t Transcript) {
	text := strings.TrimSpace(t.Text)
	if !t.Final || text == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.text != "" {
		c.text += " "
	}
	c.text += text
}

func (c *Composer) SetText(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
}

func (c *Composer) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// AttachFile adds an uploaded file to the turn. Images become the pending
// image as a data URL; any other file adds a review marker to the text.
func (c *Composer) AttachFile(name, mimeType string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if IsImage(mimeType) {
		if len(data) == 0 {
			return fmt.Errorf("image %q is empty", name)
		}
		c.image = llm.EncodeDataURL(mimeType, data)
		return nil
	}
	c.text += FileMarker(name)
	return nil
}

// Take returns the pending turn and clears the composer.
func (c *Composer) Take() (text, image string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	text, image = c.text, c.image
	c.text, c.image = "", ""
	return text, image
}

// IsImage reports whether a MIME type names an image.
func IsImage(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "image/")
}

// FileMarker is the text appended for a non-image upload.
func FileMarker(name string) string {
	return fmt.Sprintf("\n[Reviewing File: %s]", name)
}
