package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewSetsLevelAndGlobal(t *testing.T) {
	l, err := New("debug", "digit_test")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
	assert.Same(t, l, ErrorLogger)
	assert.Equal(t, "digit_test", SetServiceName("digit_test"))

	_, err = New("loud", "")
	assert.Error(t, err)
}
