package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"AGENT_ID", "TURN_MAX_RETRIES", "TURN_BACKOFF_BASE", "SESSION_STORE_DRIVER", "SESSION_STORE_KEY", "AGENT_TIMEOUT"} {
		// Setenv restores the original value after the test.
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := Load()

	assert.Equal(t, "69a2771fcc44e0dcaf39e887", cfg.Agent.AgentId)
	assert.Equal(t, 2, cfg.Turn.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Turn.BackoffBase)
	assert.Equal(t, 120*time.Second, cfg.Agent.Timeout)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "product-rec-sessions", cfg.Store.Key)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TURN_MAX_RETRIES", "4")
	t.Setenv("TURN_BACKOFF_BASE", "250ms")
	t.Setenv("SESSION_STORE_DRIVER", "redis")

	cfg := Load()

	assert.Equal(t, 4, cfg.Turn.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Turn.BackoffBase)
	assert.Equal(t, "redis", cfg.Store.Driver)
}
