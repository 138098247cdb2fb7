package errors

import (
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(InsufficientBudget, "budget exhausted")
	require.Error(t, err)
	assert.Equal(t, "budget exhausted", err.Error())

	var e *Error
	require.True(t, goerrors.As(err, &e))
	assert.Equal(t, InsufficientBudget, e.Code())
}

func TestWrap(t *testing.T) {
	t.Run("wraps underlying error", func(t *testing.T) {
		inner := fmt.Errorf("disk full")
		err := Wrap(inner, StoreFailed, "failed to persist stack")

		assert.Equal(t, "failed to persist stack: disk full", err.Error())
		assert.Equal(t, inner, goerrors.Unwrap(err))
	})

	t.Run("nil passthrough", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, Unknown, "ignored"))
	})
}

func TestWithFields(t *testing.T) {
	err := New(EmptyStack, "pop below root")
	err = WithFields(err, Fields{"depth": 0})

	var e *Error
	require.True(t, goerrors.As(err, &e))
	assert.Equal(t, EmptyStack, e.Code())
	assert.Equal(t, 0, e.Fields()["depth"])
	assert.Contains(t, err.Error(), "depth=0")
}

func TestWithFieldsMergesExisting(t *testing.T) {
	err := WithFields(New(Timeout, "thought call timed out"), Fields{"node": "a"})
	err = WithFields(err, Fields{"depth": 2})

	var e *Error
	require.True(t, goerrors.As(err, &e))
	assert.Equal(t, "a", e.Fields()["node"])
	assert.Equal(t, 2, e.Fields()["depth"])
}

func TestWithFieldsForeignError(t *testing.T) {
	err := WithFields(fmt.Errorf("plain"), Fields{"k": "v"})

	var e *Error
	require.True(t, goerrors.As(err, &e))
	assert.Equal(t, Unknown, e.Code())
	assert.Equal(t, "v", e.Fields()["k"])
}

func TestIs(t *testing.T) {
	err := New(ExhaustedAlternatives, "no diverse candidate found")
	assert.True(t, goerrors.Is(err, New(ExhaustedAlternatives, "different message")))
	assert.False(t, goerrors.Is(err, New(Timeout, "")))
}

func TestCode(t *testing.T) {
	assert.Equal(t, ResourceNotFound, Code(New(ResourceNotFound, "missing")))
	assert.Equal(t, Unknown, Code(fmt.Errorf("plain")))
}

func TestFieldsCopyIsolated(t *testing.T) {
	err := WithFields(New(InvalidInput, "bad state"), Fields{"k": 1})

	var e *Error
	require.True(t, goerrors.As(err, &e))
	f := e.Fields()
	f["k"] = 2
	assert.Equal(t, 1, e.Fields()["k"])
}
