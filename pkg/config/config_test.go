package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()
	assert.Equal(t, "127.0.0.1:9100", cfg.ListenAddr)
	assert.Equal(t, 200*time.Millisecond, cfg.SchedulerInterval)
	assert.Equal(t, 10*time.Second, cfg.AutoAllocInterval)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("HQ_LISTEN_ADDR", "0.0.0.0:8080")
	t.Setenv("HQ_AUTOALLOC_INTERVAL", "30s")
	t.Setenv("HQ_MAILBOX_BUFFER", "128")
	t.Setenv("HQ_LOG_JSON", "true")

	cfg := FromEnv()
	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr)
	assert.Equal(t, 30*time.Second, cfg.AutoAllocInterval)
	assert.Equal(t, 128, cfg.MailboxBuffer)
	assert.True(t, cfg.LogJSON)
}

func TestFromEnv_InvalidValueFallsBackToDefault(t *testing.T) {
	t.Setenv("HQ_MAILBOX_BUFFER", "not-a-number")
	cfg := FromEnv()
	assert.Equal(t, 64, cfg.MailboxBuffer)
}
