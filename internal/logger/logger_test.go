package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]interface{}
		require.NoError(t, dec.Decode(&m))
		out = append(out, m)
	}
	return out
}

func TestLoggerJSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "debug", Format: "json", Output: &buf, ServiceName: "slidewise-test"})

	l.WithField(FieldJobID, "job-1").WithError(errors.New("boom")).Warn("Part could not be explained")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "warning", lines[0]["level"])
	assert.Equal(t, "Part could not be explained", lines[0]["message"])
	assert.Equal(t, "slidewise-test", lines[0]["service"])
	assert.Equal(t, "job-1", lines[0][FieldJobID])
	assert.Equal(t, "boom", lines[0]["error"])
	assert.Contains(t, lines[0], "timestamp")
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "warn", Format: "json", Output: &buf})

	l.Info("dropped")
	l.Error("kept")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["message"])
}

func TestContextFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "info", Format: "json", Output: &buf})

	ctx := l.WithContext(context.Background())
	assert.True(t, HasLogger(ctx))
	assert.False(t, HasLogger(context.Background()))

	ctx = SetRequestID(ctx, "req-1")
	ctx = SetJobID(ctx, "job-9")
	ctx = SetDocument(ctx, "deck.pptx")
	ctx = SetComponent(ctx, "poller")
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "job-9", GetFieldString(ctx, FieldJobID))
	assert.Empty(t, GetFieldString(ctx, "missing"))

	CtxInfo(ctx, "processing %d parts", 3)
	CtxDebug(ctx, "filtered out")
	CtxWarn(ctx, "slow part %d", 2)
	CtxError(ctx, "gave up")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3)
	assert.Equal(t, "processing 3 parts", lines[0]["message"])
	assert.Equal(t, "deck.pptx", lines[0][FieldDocument])
	assert.Equal(t, "req-1", lines[0][FieldRequestID])
	assert.Equal(t, "poller", lines[0][FieldComponent])
	assert.Equal(t, "warning", lines[1]["level"])
	assert.Equal(t, "error", lines[2]["level"])
}

func TestEntryMetrics(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "info", Format: "json", Output: &buf})
	ctx := l.WithContext(context.Background())

	base := With(Fields{"explained": 2})
	base.WithParts(3).WithCount(2).WithSize(512).WithSince(time.Now().Add(-time.Second)).WithStatus("done").Info(ctx, "Job finalized")
	base.Warn(ctx, "plain")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.EqualValues(t, 3, lines[0][FieldParts])
	assert.EqualValues(t, 2, lines[0]["explained"])
	assert.EqualValues(t, 512, lines[0][FieldSize])
	assert.EqualValues(t, 2, lines[0][FieldCount])
	assert.Equal(t, "done", lines[0][FieldStatus])
	assert.GreaterOrEqual(t, lines[0][FieldDurationMs].(float64), float64(1000))

	// derived entries do not leak fields into their parent
	assert.NotContains(t, lines[1], FieldParts)
	assert.Equal(t, "warning", lines[1]["level"])
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_MAX_SIZE", "nope")
	t.Setenv("LOG_COMPRESS", "false")

	cfg := LoadFromEnv()
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, 100, cfg.MaxSize)
	assert.False(t, cfg.Compress)

	named := cfg.WithService("poller")
	assert.Equal(t, "poller", named.ServiceName)
	assert.Equal(t, "slidewise", cfg.ServiceName)
}

func TestNewFromEnvOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewFromEnv(&EnvConfig{Level: "info", Format: "text", Output: &buf, ServiceName: "svc"})
	l.Info("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "service=svc")
}
