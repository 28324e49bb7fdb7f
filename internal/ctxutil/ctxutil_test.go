package ctxutil_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kubikal7/ski-jumping-management/internal/auth"
	"github.com/kubikal7/ski-jumping-management/internal/ctxutil"
)

func TestClaimsRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, ctxutil.ClaimsFromContext(ctx))

	c := &auth.Claims{Login: "coach"}
	assert.Same(t, c, ctxutil.ClaimsFromContext(ctxutil.WithClaims(ctx, c)))
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ctxutil.RequestIDFromContext(ctx))
	assert.Equal(t, "abc", ctxutil.RequestIDFromContext(ctxutil.WithRequestID(ctx, "abc")))
}
