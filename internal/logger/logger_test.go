package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupJSONLogger(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	ResetForTesting()
	t.Cleanup(ResetForTesting)

	var buf bytes.Buffer
	Setup(Config{
		Level:  level,
		Format: FormatJSON,
		Output: &buf,
	})
	return &buf
}

func TestParseLogFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseLogFormat("json"))
	assert.Equal(t, FormatJSON, ParseLogFormat("JSON"))
	assert.Equal(t, FormatConsole, ParseLogFormat("console"))
	assert.Equal(t, FormatConsole, ParseLogFormat("anything-else"))
}

func TestInfoWithFields(t *testing.T) {
	buf := setupJSONLogger(t, "info")

	Get().Info("part downloaded", map[string]interface{}{
		"part":  3,
		"bytes": 1024,
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "part downloaded", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, float64(3), entry["part"])
	assert.Equal(t, float64(1024), entry["bytes"])
	assert.Contains(t, entry, "time")
}

func TestLevelFiltering(t *testing.T) {
	buf := setupJSONLogger(t, "warn")

	log := Get()
	log.Debug("not logged")
	log.Info("not logged either")
	log.Warn("logged")

	assert.Contains(t, buf.String(), "logged")
	assert.NotContains(t, buf.String(), "not logged")
}

func TestWithFields(t *testing.T) {
	buf := setupJSONLogger(t, "info")

	Get().WithFields(map[string]interface{}{"media_id": "ABC"}).Info("license acquired")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ABC", entry["media_id"])
	assert.Equal(t, "license acquired", entry["message"])
}

func TestInfof(t *testing.T) {
	buf := setupJSONLogger(t, "info")

	Get().Infof("downloaded %d of %d parts", 2, 5)

	assert.Contains(t, buf.String(), "downloaded 2 of 5 parts")
}

func TestSetupOnlyOnce(t *testing.T) {
	buf := setupJSONLogger(t, "info")

	var other bytes.Buffer
	Setup(Config{Level: "debug", Format: FormatJSON, Output: &other})

	Get().Info("still the first writer")
	assert.Contains(t, buf.String(), "still the first writer")
	assert.Empty(t, other.String())
}

func TestNilLoggerIsSafe(t *testing.T) {
	var log *Logger
	log.Debug("no panic")
	log.Info("no panic")
	log.Warn("no panic")
	log.Error("no panic")
	log.Infof("no panic %d", 1)
}
