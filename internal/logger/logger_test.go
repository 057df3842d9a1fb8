package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, zerolog.DebugLevel)
	l.Info("aggregation", "labels voted", map[string]interface{}{"labels": 3})

	var ev map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &ev))
	assert.Equal(t, "aggregation", ev["component"])
	assert.Equal(t, "labels voted", ev["message"])
	assert.EqualValues(t, 3, ev["labels"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, zerolog.WarnLevel)
	l.Debug("x", "hidden", nil)
	l.Info("x", "hidden", nil)
	assert.Zero(t, buf.Len())

	l.Warning("x", "shown", nil)
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
}
