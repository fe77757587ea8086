package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"db-migrate/internal/logging"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		name           string
		verbose, debug bool
		want           slog.Level
	}{
		{"quiet", false, false, slog.LevelWarn},
		{"verbose", true, false, slog.LevelInfo},
		{"debug", false, true, slog.LevelDebug},
		{"both", true, true, slog.LevelDebug},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := logging.New(&bytes.Buffer{}, tt.verbose, tt.debug)
			ctx := context.Background()
			assert.True(t, logger.Enabled(ctx, tt.want))
			assert.False(t, logger.Enabled(ctx, tt.want-1))
		})
	}
}

func TestNew_WritesText(t *testing.T) {
	var buf bytes.Buffer
	logging.New(&buf, false, false).Warn("table skipped", "table", "items")
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "table=items")
}

func TestContextRoundTrip(t *testing.T) {
	logger := logging.New(&bytes.Buffer{}, true, false)
	ctx := logging.ContextWithLogger(context.Background(), logger)
	assert.Same(t, logger, logging.FromContext(ctx))

	assert.Same(t, slog.Default(), logging.FromContext(context.Background()))
	assert.Equal(t, ctx, logging.ContextWithLogger(ctx, nil))
}

func TestDiscard(t *testing.T) {
	assert.False(t, logging.Discard().Enabled(context.Background(), slog.LevelError))
}
