package goroutine

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/subsync/internal/shared/logger"
)

func wait(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("goroutine did not finish")
	}
}

func TestSafeGo_RecoversPanic(t *testing.T) {
	var buf bytes.Buffer
	log := logger.FromSlog(slog.New(slog.NewJSONHandler(&buf, nil)))

	wait(t, SafeGo(context.Background(), log, "entitlement-change-handler", func(context.Context) {
		panic("cache unavailable")
	}, "user_id", "u_123"))

	out := buf.String()
	assert.Contains(t, out, "goroutine panicked")
	assert.Contains(t, out, `"panic":"cache unavailable"`)
	assert.Contains(t, out, `"user_id":"u_123"`)
}

func TestSafeGo_PassesContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "tail")

	var got any
	wait(t, SafeGo(ctx, logger.NewNopLogger(), "reader", func(ctx context.Context) {
		got = ctx.Value(key{})
	}))

	require.Equal(t, "tail", got)
}
