package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 300*time.Second, cfg.WebSocket.ExpireAfter)
	assert.Equal(t, 120*time.Second, cfg.WebSocket.ZombieAfter)
	assert.Equal(t, 100, cfg.Message.CacheSize)
	assert.Equal(t, 30*24*time.Hour, cfg.Offline.MessageTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Offline.NotificationTTL)
	assert.Equal(t, 5*time.Second, cfg.Presence.Debounce)
}

func TestLoadConfig_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	// 时长字段以Go时长字符串表达（yaml.v3按time.ParseDuration解析，不接受裸整数）
	data := []byte(`
server:
  port: "9090"
websocket:
  zombieAfter: 90s
  expireAfter: 240s
kafka:
  brokers:
    - kafka-1:9092
    - kafka-2:9092
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg := LoadConfig(path)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.WebSocket.ZombieAfter)
	assert.Equal(t, 240*time.Second, cfg.WebSocket.ExpireAfter)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	// 未出现的字段保留默认值
	assert.Equal(t, "localhost", cfg.Database.Host)
}

func TestLoadConfig_MalformedYAMLFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [broken"), 0644))

	cfg := LoadConfig(path)

	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoadConfig_EnvVarsWin(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("KAFKA_BROKERS", "broker-a:9092,broker-b:9092")
	t.Setenv("WS_ZOMBIE_AFTER", "100s")

	cfg := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, []string{"broker-a:9092", "broker-b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 100*time.Second, cfg.WebSocket.ZombieAfter)
}

func TestValidate_ZombieThresholdMustBeBelowExpiry(t *testing.T) {
	cfg := getDefaultConfig()
	cfg.WebSocket.ZombieAfter = cfg.WebSocket.ExpireAfter

	assert.Error(t, cfg.Validate())

	cfg.WebSocket.ZombieAfter = cfg.WebSocket.ExpireAfter - time.Second
	assert.NoError(t, cfg.Validate())
}

func TestHolder_SwapReplacesAtomically(t *testing.T) {
	first := getDefaultConfig()
	holder := NewHolder(first)
	assert.Same(t, first, holder.Load())

	second := getDefaultConfig()
	second.Server.Port = "9999"
	old := holder.Swap(second)

	assert.Same(t, first, old)
	assert.Equal(t, "9999", holder.Load().Server.Port)
}
