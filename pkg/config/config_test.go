package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()
	require.NotNil(t, cfg)

	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, int64(10), cfg.Generation.RegistrationGrant)
	require.Equal(t, 15*time.Minute, cfg.Generation.PendingTimeout)
	require.Equal(t, 720, cfg.Watermark.Size)
	require.Equal(t, "Tuliu Preview", cfg.Watermark.Label)
}

func TestCurrentReturnsLoadedSnapshot(t *testing.T) {
	cfg := LoadConfig()

	current := Current()
	require.NotNil(t, current)
	require.Equal(t, cfg.Generation.PendingTimeout, current.Generation.PendingTimeout)
	require.Equal(t, cfg.Server.Addr, current.Server.Addr)
}
