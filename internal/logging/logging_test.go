// ABOUTME: Tests for logger construction
// ABOUTME: Verifies level filtering, JSON output and component tagging

package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexdesk/chat-gateway/internal/config"
)

func TestNew_JSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len(), "info should be filtered at warn level")

	logger.Warn().Str("conversation_id", "c1").Msg("dropped event")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "chat-gateway", entry["service"])
	assert.Equal(t, "c1", entry["conversation_id"])
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	base := New(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger := Component(&base, "realtime")
	logger.Debug().Msg("client registered")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "realtime", entry["component"])

	nop := Component(nil, "x")
	assert.Equal(t, zerolog.Disabled, nop.GetLevel())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
}
