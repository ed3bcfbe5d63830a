package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, c.ServerEndpointAddr, "127.0.0.1:50051")
	assert.Equal(t, c.DeviceID, "")
	assert.Equal(t, c.DataDir, "nimbus-data")
	assert.Equal(t, c.Strategy, "last_write_wins")
	assert.Equal(t, c.SyncInterval, 5*time.Minute)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	c := LoadConfig()

	require.NotNil(t, c, "LoadConfig must not return nil")
	assert.Equal(t, c.ServerEndpointAddr, "127.0.0.1:50051")
	assert.Equal(t, c.Strategy, "last_write_wins")
	assert.Equal(t, c.SyncInterval, 5*time.Minute)
}
