package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/backoffice/logging"
)

func TestNewWithWriter_JSONOutsideDevelopment(t *testing.T) {
	var buf bytes.Buffer
	l := logging.NewWithWriter(logging.Config{Env: "production", Level: "warn", Name: "backoffice"}, &buf)

	l.Info().Msg("dropped")
	cl := logging.Component(l, "stock")
	cl.Warn().Str("article", "Farina").Msg("low stock")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "backoffice", entry["app"])
	assert.Equal(t, "stock", entry["component"])
	assert.Equal(t, "Farina", entry["article"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, logging.ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, logging.ParseLevel("warning"))
	assert.Equal(t, zerolog.InfoLevel, logging.ParseLevel("nonsense"))
}
