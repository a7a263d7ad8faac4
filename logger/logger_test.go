package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init("info", &buf))

	WithFields(logrus.Fields{"ip": "10.0.0.1"}).Info("hello")
	Log().Debug("hidden")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "10.0.0.1", line["ip"])
}

func TestInit_DebugText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init("debug", &buf))
	Log().Debug("visible")
	assert.Contains(t, buf.String(), "visible")
	assert.Equal(t, logrus.DebugLevel, Logger().GetLevel())
}

func TestInit_BadLevel(t *testing.T) {
	assert.Error(t, Init("loud", nil))
}
