package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeIntelError_Unwrap_PreservesOriginalError(t *testing.T) {
	cause := stderrors.New("disk is full")

	err := Wrap(ErrCodeStoreIO, cause)

	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, stderrors.Is(err, cause))
}

func TestCodeIntelError_Error_ReturnsFormattedMessage(t *testing.T) {
	err := New(ErrCodeIndexNotFound, "index \"foo\" does not exist", nil)

	assert.Contains(t, err.Error(), ErrCodeIndexNotFound)
	assert.Contains(t, err.Error(), "index \"foo\" does not exist")
}

func TestCodeIntelError_Is_MatchesByCode(t *testing.T) {
	a := New(ErrCodeIndexNotFound, "first", nil)
	b := New(ErrCodeIndexNotFound, "second", nil)

	assert.True(t, stderrors.Is(a, b))
}

func TestCodeIntelError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	a := New(ErrCodeIndexNotFound, "first", nil)
	b := New(ErrCodeIndexExists, "second", nil)

	assert.False(t, stderrors.Is(a, b))
}

func TestCodeIntelError_WithDetail_AddsContext(t *testing.T) {
	err := New(ErrCodeInvalidQuery, "bad query", nil).
		WithDetail("field", "diversity").
		WithDetail("value", "1.5")

	assert.Equal(t, "diversity", err.Details["field"])
	assert.Equal(t, "1.5", err.Details["value"])
}

func TestCodeIntelError_WithSuggestion_AddsSuggestion(t *testing.T) {
	err := New(ErrCodeIndexNotFailed, "index is not failed", nil).
		WithSuggestion("run `retry` to restart a failed index")

	assert.Equal(t, "run `retry` to restart a failed index", err.Suggestion)
}

func TestCategoryFromCode(t *testing.T) {
	cases := map[string]Category{
		ErrCodeRootNotFound:    CategoryInput,
		ErrCodeIndexExists:     CategoryConflict,
		ErrCodeParseFailed:     CategoryParse,
		ErrCodeEmbeddingFailed: CategoryProvider,
		ErrCodeStoreIO:         CategoryStore,
		ErrCodeInternal:        CategoryCrossCutting,
	}

	for code, want := range cases {
		err := New(code, "message", nil)
		assert.Equal(t, want, err.Category, "code %s", code)
	}
}

func TestSeverityFromCode(t *testing.T) {
	assert.Equal(t, SeverityFatal, New(ErrCodeStoreIO, "m", nil).Severity)
	assert.Equal(t, SeverityWarning, New(ErrCodeParseFailed, "m", nil).Severity)
	assert.Equal(t, SeverityError, New(ErrCodeIndexExists, "m", nil).Severity)
}

func TestRetryableFromCode(t *testing.T) {
	assert.True(t, New(ErrCodeEmbeddingTimeout, "m", nil).Retryable)
	assert.True(t, New(ErrCodeProviderUnavailable, "m", nil).Retryable)
	assert.False(t, New(ErrCodeStoreIO, "m", nil).Retryable)
}

func TestWrap_CreatesCodeIntelErrorFromError(t *testing.T) {
	cause := stderrors.New("connection refused")

	err := Wrap(ErrCodeEmbeddingFailed, cause)

	assert.Equal(t, ErrCodeEmbeddingFailed, err.Code)
	assert.Equal(t, "connection refused", err.Message)
	assert.Equal(t, cause, err.Cause)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"retryable provider error", New(ErrCodeEmbeddingTimeout, "m", nil), true},
		{"non-retryable store error", New(ErrCodeStoreIO, "m", nil), false},
		{"plain error", stderrors.New("oops"), false},
		{"nil error", nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(New(ErrCodeStoreIO, "m", nil)))
	assert.False(t, IsFatal(New(ErrCodeParseFailed, "m", nil)))
	assert.False(t, IsFatal(nil))
}

func TestConflictErrorCarriesSuggestion(t *testing.T) {
	err := ConflictError(ErrCodeIndexNotFailed, "index \"T\" is not failed",
		"run `retry` to restart a failed index", nil)

	assert.Equal(t, CategoryConflict, err.Category)
	assert.Equal(t, "run `retry` to restart a failed index", err.Suggestion)
}

func TestGetCodeAndCategory(t *testing.T) {
	err := New(ErrCodeIndexExists, "m", nil)

	assert.Equal(t, ErrCodeIndexExists, GetCode(err))
	assert.Equal(t, CategoryConflict, GetCategory(err))

	assert.Equal(t, "", GetCode(stderrors.New("plain")))
}
