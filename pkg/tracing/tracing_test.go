package tracing

import (
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDisabledTracerIsNoop(t *testing.T) {
	tr, closeFn, err := InitTracer(Config{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.IsType(t, opentracing.NoopTracer{}, tr)
	closeFn()
}
