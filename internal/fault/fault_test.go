package fault

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NilErr(t *testing.T) {
	assert.Nil(t, New(Connect, "connect", "fs", nil))
}

func TestError_Message(t *testing.T) {
	base := errors.New("exec: \"nope\": executable file not found")

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"op and session", New(Connect, "connect", "fs", base), "connect fs: " + base.Error()},
		{"op only", New(Gateway, "decision", "", base), "decision: " + base.Error()},
		{"bare", New(Invocation, "", "", base), base.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", New(Teardown, "close", "slack", errors.New("broken pipe")))
	assert.Equal(t, Teardown, KindOf(err))
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
	assert.Equal(t, Unknown, KindOf(nil))
}

// TestIs_NestedKinds verifies that a kind wrapped inside another fault is
// still found.
func TestIs_NestedKinds(t *testing.T) {
	inner := New(TimedOut, "call", "fs", context.DeadlineExceeded)
	outer := New(Invocation, "invoke", "fs", inner)

	assert.True(t, Is(outer, Invocation))
	assert.True(t, Is(outer, TimedOut))
	assert.False(t, Is(outer, Gateway))
	require.ErrorIs(t, outer, context.DeadlineExceeded)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "catalog-fetch", CatalogFetch.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
