package outcome

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apperrors "cinegraph/backend/pkg/errors"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"nil", nil, StatusOk},
		{"not found", apperrors.NewEntityNotFound("fused", "m1"), StatusNotFound},
		{"wrapped not found", fmt.Errorf("lookup: %w", apperrors.NewEntityNotFound("graph", "x")), StatusNotFound},
		{"empty", apperrors.NewEmptyResult("no liked movies"), StatusEmpty},
		{"timeout", apperrors.NewUpstreamTimeout("liked movies", 20*time.Second), StatusTimedOut},
		{"upstream", apperrors.NewUpstreamFailure("embedding", fmt.Errorf("boom")), StatusUpstreamError},
		{"invalid", apperrors.NewInvalidInput("title", "cannot be empty"), StatusInvalid},
		{"plain", fmt.Errorf("anything"), StatusUpstreamError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromError[int](tt.err)
			assert.Equal(t, tt.want, got.Status)
		})
	}
}

func TestMap(t *testing.T) {
	doubled := Map(Ok(21), func(v int) int { return v * 2 })
	assert.True(t, doubled.IsOk())
	assert.Equal(t, 42, doubled.Value)

	missing := Map(NotFound[int]("gone"), func(v int) string { return "never" })
	assert.Equal(t, StatusNotFound, missing.Status)
	assert.Equal(t, "gone", missing.Detail)
	assert.Equal(t, "", missing.Value)
}
