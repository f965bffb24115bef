package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesJSONToFile(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	path := filepath.Join(t.TempDir(), "logs", "ls-indexer.log")
	closer, err := Init(Options{Level: "debug", Format: "json", File: path})
	require.NoError(t, err)

	l := WithComponent("cache")
	l.Info().Str("key", "value").Msg("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"cache"`)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Equal(t, zerolog.DebugLevel, log.Logger.GetLevel())
}

func TestInitUnknownLevelFallsBackToInfo(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	closer, err := Init(Options{Level: "chatty", File: filepath.Join(t.TempDir(), "x.log")})
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, zerolog.InfoLevel, log.Logger.GetLevel())
}
