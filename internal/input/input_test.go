package input_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"study-buddy/backend/internal/input"
)

// fakeSource replays transcripts on Start.
type fakeSource struct {
	transcripts []input.Transcript
	fn          func(input.Transcript)
	stopped     bool
}

func (f *fakeSource) OnFragment(fn func(input.Transcript)) { f.fn = fn }

func (f *fakeSource) Start(context.Context) error {
	for _, t := range f.transcripts {
		f.fn(t)
	}
	return nil
}

func (f *fakeSource) Stop() error {
	f.stopped = true
	return nil
}

func TestComposer_Listen(t *testing.T) {
	composer := input.NewComposer()
	composer.SetText("Explain")
	src := &fakeSource{transcripts: []input.Transcript{
		{Text: "photo", Final: false},
		{Text: "photosynthesis", Final: true},
		{Text: "  ", Final: true},
		{Text: "in plants", Final: true},
	}}

	require.NoError(t, composer.Listen(context.Background(), src))

	assert.Equal(t, "Explain photosynthesis in plants", composer.Text())
}

func TestComposer_AttachFile(t *testing.T) {
	t.Run("image becomes the pending image", func(t *testing.T) {
		composer := input.NewComposer()

		require.NoError(t, composer.AttachFile("leaf.png", "image/png", []byte("hi")))

		text, image := composer.Take()
		assert.Empty(t, text)
		assert.Equal(t, "data:image/png;base64,aGk=", image)
	})

	t.Run("other files add a review marker", func(t *testing.T) {
		composer := input.NewComposer()
		composer.SetText("Check this")

		require.NoError(t, composer.AttachFile("notes.txt", "text/plain", []byte("ignored")))

		text, image := composer.Take()
		assert.Equal(t, "Check this\n[Reviewing File: notes.txt]", text)
		assert.Empty(t, image)
	})

	t.Run("empty image is rejected", func(t *testing.T) {
		assert.Error(t, input.NewComposer().AttachFile("x.png", "image/png", nil))
	})
}

func TestComposer_TakeClears(t *testing.T) {
	composer := input.NewComposer()
	composer.SetText("hello")

	text, _ := composer.Take()
	again, image := composer.Take()

	assert.Equal(t, "hello", text)
	assert.Empty(t, again)
	assert.Empty(t, image)
}
