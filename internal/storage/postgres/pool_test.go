package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/harmony/internal/config"
)

func TestPoolConfig_CarriesLimits(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:            "db.internal",
		Port:            6543,
		User:            "harmony",
		Password:        "secret",
		Name:            "results",
		SSLMode:         "disable",
		MaxConns:        7,
		MinConns:        2,
		MaxConnLifetime: 15 * time.Minute,
	}
	poolCfg, err := poolConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, int32(7), poolCfg.MaxConns)
	assert.Equal(t, int32(2), poolCfg.MinConns)
	assert.Equal(t, 15*time.Minute, poolCfg.MaxConnLifetime)
	assert.Equal(t, "db.internal", poolCfg.ConnConfig.Host)
	assert.Equal(t, uint16(6543), poolCfg.ConnConfig.Port)
	assert.Equal(t, "results", poolCfg.ConnConfig.Database)
}

func TestPoolConfig_RejectsBadSSLMode(t *testing.T) {
	_, err := poolConfig(config.DatabaseConfig{
		Host: "localhost", Port: 5432, User: "u", Name: "n", SSLMode: "sometimes",
	})
	assert.Error(t, err)
}
