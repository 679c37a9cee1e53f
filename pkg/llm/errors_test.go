package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
	}{
		{"unauthorized", errors.New("401 Unauthorized"), ErrorTypeAuth, false},
		{"invalid key", errors.New("Invalid API key provided"), ErrorTypeAuth, false},
		{"model missing", errors.New("model gpt-5-mini not found"), ErrorTypeModel, false},
		{"endpoint 404", errors.New("404 page not found"), ErrorTypeEndpoint, false},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrorTypeEndpoint, true},
		{"timeout", errors.New("context deadline exceeded"), ErrorTypeEndpoint, true},
		{"rate limited", errors.New("429 Too Many Requests"), ErrorTypeUnknown, true},
		{"overloaded", errors.New("Overloaded"), ErrorTypeUnknown, true},
		{"server error", errors.New("502 Bad Gateway"), ErrorTypeEndpoint, true},
		{"unclassified", errors.New("something odd"), ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.retryable, got.Retryable)
			assert.ErrorIs(t, got, tt.err, "cause must survive wrapping")
		})
	}
}

func TestClassifyError_Nil(t *testing.T) {
	assert.Nil(t, ClassifyError(nil))
}

func TestClassifyError_PassesThroughStructured(t *testing.T) {
	orig := NewError(ErrorTypeAuth, "authentication failed", false, nil)
	wrapped := fmt.Errorf("call failed: %w", orig)
	assert.Same(t, orig, ClassifyError(wrapped))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewError(ErrorTypeEndpoint, "server error", true, nil)))
	assert.False(t, IsRetryable(NewError(ErrorTypeAuth, "authentication failed", false, nil)))
	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestErrorString(t *testing.T) {
	e := &Error{Type: ErrorTypeEndpoint, Message: "server error", StatusCode: 503, Cause: errors.New("boom")}
	s := e.Error()
	assert.Contains(t, s, "endpoint")
	assert.Contains(t, s, "HTTP 503")
	assert.Contains(t, s, "boom")
}
