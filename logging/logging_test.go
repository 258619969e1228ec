package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in    string
		want  zerolog.Level
		known bool
	}{
		{"", zerolog.InfoLevel, true},
		{"debug", zerolog.DebugLevel, true},
		{"INFO", zerolog.InfoLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{"warn", zerolog.WarnLevel, true},
		{"error", zerolog.ErrorLevel, true},
		{"verbose", zerolog.DebugLevel, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, known := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.known, known)
		})
	}
}

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	log := Setup(Options{Level: "warning", Format: FormatJSON, Out: &buf})
	log.Info().Msg("hidden")
	log.Warn().Str("project", "acme/tool").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &fields))
	assert.Equal(t, "shown", fields["message"])
	assert.Equal(t, "warn", fields["level"])
	assert.Equal(t, "acme/tool", fields["project"])
	assert.NotEmpty(t, fields["run_id"])
	assert.NotEmpty(t, fields["time"])
}

func TestSetupUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	log := Setup(Options{Level: "chatty", Format: FormatJSON, Out: &buf})
	assert.Equal(t, zerolog.DebugLevel, log.GetLevel())
	assert.Contains(t, buf.String(), "Unknown log level 'chatty'")
}

func TestSetupFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "mirror.log")
	log := Setup(Options{Format: FormatConsole, File: path, Out: &buf})
	log.Info().Msg("to both")

	assert.Contains(t, buf.String(), "to both")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"to both"`)
}
