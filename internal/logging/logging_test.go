package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestInitJSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	Init(&buf, "warn", "json")

	log.Info().Msg("hidden")
	log.Warn().Str("component", "test").Msg("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "shown", line["message"])
	require.Equal(t, "test", line["component"])
}

func TestInitUnknownLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	Init(&buf, "chatty", "json")
	require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
