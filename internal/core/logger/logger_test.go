package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"loan-ledger/internal/core/config"
)

func TestFromConfig_WritesRotatedFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "ledger.log")
	l, cleanup := FromConfig(config.Log{
		Level: "info",
		JSON:  true,
		File:  config.LogFile{Filename: file, MaxSizeMB: 1},
	})
	l.Info("loan admitted")
	cleanup()

	b, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(b), "loan admitted")
}

func TestBuild_UnknownLevelFallsBackToInfo(t *testing.T) {
	l, cleanup := Build(Options{Level: "verbose"})
	defer cleanup()
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}
