package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn", "json")
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Str("check", "5.1.4").Msg("visible")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "visible", line["message"])
	assert.Equal(t, "5.1.4", line["check"])
	assert.Equal(t, "warn", line["level"])
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "", "")
	require.NoError(t, err)

	logger.Debug().Msg("too verbose")
	logger.Info().Str("category", "Network").Msg("category complete")

	out := buf.String()
	assert.NotContains(t, out, "too verbose")
	assert.Contains(t, out, "category complete")
	assert.Contains(t, out, "category=Network")
}

func TestNew_RedirectedFileHasNoColor(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "audit.log"))
	require.NoError(t, err)
	defer f.Close()

	assert.False(t, isTerminal(f))

	logger, err := New(f, "warn", "console")
	require.NoError(t, err)
	logger.Warn().Str("check", "6.2.4").Msg("check timed out")

	content, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Contains(t, string(content), "check timed out")
	assert.NotContains(t, string(content), "\x1b[")
}

func TestIsTerminal_Pipe(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	assert.False(t, isTerminal(w))
	assert.False(t, isTerminal(&bytes.Buffer{}))
}

func TestNew_Errors(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "loud", "json")
	assert.Error(t, err)

	_, err = New(&bytes.Buffer{}, "info", "xml")
	assert.ErrorContains(t, err, "unknown log format")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, lvl)
}
