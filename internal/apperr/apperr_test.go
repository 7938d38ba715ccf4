package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
		msg  string
	}{
		{"not found", NotFound("thread %d", 7), ErrNotFound, "thread 7"},
		{"forbidden", Forbidden("only the sender can edit"), ErrForbidden, "only the sender can edit"},
		{"bad request", BadRequest("message already deleted"), ErrBadRequest, "message already deleted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.kind)
			assert.Equal(t, tt.msg, Message(tt.err))

			wrapped := fmt.Errorf("engine: %w", tt.err)
			assert.True(t, errors.Is(wrapped, tt.kind))
		})
	}
}

func TestMessagePassesThroughOtherErrors(t *testing.T) {
	assert.Equal(t, "boom", Message(errors.New("boom")))
}
