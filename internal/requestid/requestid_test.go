package requestid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_RoundTrip(t *testing.T) {
	ctx, id := New(context.Background())
	assert.NotEmpty(t, id)
	assert.Equal(t, id, FromContext(ctx))
}

func TestNew_UniquePerCall(t *testing.T) {
	_, a := New(context.Background())
	_, b := New(context.Background())
	assert.NotEqual(t, a, b)
}

func TestFromContext_Absent(t *testing.T) {
	assert.Empty(t, FromContext(context.Background()))
}
