package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritesOneJSONObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	log := newJSON("test-service", &buf)

	log.Info("First event", map[string]interface{}{"card_id": "abc"})
	log.Warn("Second event", nil)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &first))
	assert.Equal(t, "info", first["level"])
	assert.Equal(t, "test-service", first["service"])
	assert.Equal(t, "First event", first["message"])
	assert.Equal(t, "abc", first["card_id"])
	assert.NotEmpty(t, first["timestamp"])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, "warn", second["level"])
}

func TestFieldsDoNotOverrideCoreKeys(t *testing.T) {
	var buf bytes.Buffer
	log := newJSON("test-service", &buf)

	log.Error("Event", map[string]interface{}{"level": "spoofed", "message": "spoofed"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "Event", entry["message"])
}
