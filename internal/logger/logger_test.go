package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	log, err := New("debug", false)
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	log, err = New("warn", true)
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.ErrorLevel))
}

func TestNewInvalidLevel(t *testing.T) {
	_, err := New("loud", false)
	require.Error(t, err)
}

func TestRedacted(t *testing.T) {
	f := Redacted("privateKey")
	assert.Equal(t, "privateKey", f.Key)
	assert.Equal(t, "[redacted]", f.String)
}
