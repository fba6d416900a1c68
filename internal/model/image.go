package model

import (
	"fmt"
	"slices"
	"strings"

	app_errors "study-buddy/backend/internal/errors"
)

// DefaultVisualPrompt is used when an image request carries no prompt.
const DefaultVisualPrompt = "a high-fidelity study diagram"

var (
	AspectRatios = []string{"1:1", "3:4", "4:3", "9:16", "16:9"}
	Styles       = []string{"diagram", "illustration", "photorealistic", "sketch", "3d-render"}
	Angles       = []string{"front", "isometric", "top-down", "side"}
	Lightings    = []string{"studio", "natural", "dramatic", "soft"}
	Textures     = []string{"flat", "paper", "chalkboard", "glossy"}
)

// ImageConfig describes one image generation or edit request.
// A non-empty SourceImage turns the request into an edit of that image.
type ImageConfig struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	SourceImage string `json:"source_image,omitempty"` // data URL or raw base64
	Style       string `json:"style,omitempty"`
	Angle       string `json:"angle,omitempty"`
	Lighting    string `json:"lighting,omitempty"`
	Texture     string `json:"texture,omitempty"`
}

// IsEdit reports whether the request edits an existing image.
func (c ImageConfig) IsEdit() bool {
	return c.SourceImage != ""
}

// Normalize fills defaults for empty facets and rejects unknown values.
func (c *ImageConfig) Normalize() error {
	c.Prompt = strings.TrimSpace(c.Prompt)
	if c.Prompt == "" {
		c.Prompt = DefaultVisualPrompt
	}
	facets := []struct {
		name    string
		value   *string
		allowed []string
	}{
		{"aspect_ratio", &c.AspectRatio, AspectRatios},
		{"style", &c.Style, Styles},
		{"angle", &c.Angle, Angles},
		{"lighting", &c.Lighting, Lightings},
		{"texture", &c.Texture, Textures},
	}
	for _, f := range facets {
		if *f.value == "" {
			*f.value = f.allowed[0]
			continue
		}
		if !slices.Contains(f.allowed, *f.value) {
			return fmt.Errorf("%w: unsupported %s %q", app_errors.ErrValidation, f.name, *f.value)
		}
	}
	return nil
}

// DescribeFacets renders the styling facets as prompt text.
func (c ImageConfig) DescribeFacets() string {
	return fmt.Sprintf("Style: %s. Camera angle: %s. Lighting: %s. Texture: %s.",
		c.Style, c.Angle, c.Lighting, c.Texture)
}
