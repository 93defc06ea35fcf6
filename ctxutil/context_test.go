package ctxutil

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestUserID(t *testing.T) {
	ctx := SetUserID(context.Background(), "u1")
	assert.Equal(t, "u1", GetUserID(ctx))
	assert.Equal(t, "", GetUserID(context.Background()))
}

func TestEnsureTraceID(t *testing.T) {
	ctx, id := EnsureTraceID(context.Background())
	assert.NotEmpty(t, id)

	again, same := EnsureTraceID(ctx)
	assert.Equal(t, id, same)
	assert.Equal(t, id, GetTraceID(again))
}

func TestGinContextReadThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(userIDKey, "from-gin")

	ctx := WithGinContext(context.Background(), c)
	assert.Equal(t, "from-gin", GetUserID(ctx))

	SetTraceID(ctx, "t1")
	v, ok := c.Get(TraceIDKey)
	assert.True(t, ok)
	assert.Equal(t, "t1", v)
}
