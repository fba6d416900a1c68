package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	mock_llm "study-buddy/backend/internal/llm/mocks"
	"study-buddy/backend/internal/model"
	"study-buddy/backend/internal/repository"
	"study-buddy/backend/internal/service"
)

func TestSuggestionService_SuggestReplies(t *testing.T) {
	ctx := context.Background()
	history := []model.Message{{Role: model.RoleUser, Content: "What is pi?"}}

	testCases := []struct {
		name     string
		raw      []string
		err      error
		expected []string
	}{
		{name: "caps at three", raw: []string{"a", "b", "c", "d"}, expected: []string{"a", "b", "c"}},
		{name: "trims and drops blanks", raw: []string{"  a ", "", "\t"}, expected: []string{"a"}},
		{name: "empty answer falls back", raw: []string{}, expected: service.FallbackReplies},
		{name: "error falls back", err: errors.New("parse failure"), expected: service.FallbackReplies},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			provider := mock_llm.NewMockProvider(t)
			ws := setupWorkspace(t, repository.NewMemoryKV())
			suggestions := service.NewSuggestionService(ws, provider)
			provider.On("Suggest", mock.Anything, mock.Anything).Return(tc.raw, tc.err).Once()

			got := suggestions.SuggestReplies(ctx, history)

			assert.Equal(t, tc.expected, got)
		})
	}

	t.Run("fallback cannot be mutated by callers", func(t *testing.T) {
		provider := mock_llm.NewMockProvider(t)
		suggestions := service.NewSuggestionService(setupWorkspace(t, repository.NewMemoryKV()), provider)
		provider.On("Suggest", mock.Anything, mock.Anything).Return(nil, errors.New("x")).Once()

		got := suggestions.SuggestReplies(ctx, history)
		got[0] = "changed"

		assert.Equal(t, "Can you explain that differently?", service.FallbackReplies[0])
	})
}
