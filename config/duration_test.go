package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDurationUnmarshal(t *testing.T) {
	var cfg struct {
		Scan Duration `json:"scan"`
		Idle Duration `json:"idle"`
	}

	raw := `{"scan": "12h", "idle": 90}`
	require.NoError(t, json.Unmarshal([]byte(raw), &cfg))
	require.Equal(t, 12*time.Hour, time.Duration(cfg.Scan))
	require.Equal(t, 90*time.Second, time.Duration(cfg.Idle), "数字按秒解释")

	require.Error(t, json.Unmarshal([]byte(`{"scan": "abc"}`), &cfg))
}

func TestTrackerNormalize(t *testing.T) {
	var cfg Config
	cfg.Normalize()

	require.Equal(t, time.Minute, time.Duration(cfg.Tracker.ScanInterval))
	require.Equal(t, 12*time.Hour, time.Duration(cfg.Tracker.HealthyInterval))
	require.Equal(t, 5, cfg.Tracker.MaxFailingSpree)
	require.Equal(t, 30*time.Minute, time.Duration(cfg.Tracker.StuckAfter), "默认为任务超时的两倍")
	require.Equal(t, ":8080", cfg.Server.Bind)
	require.Equal(t, "cnctrack-tasks", cfg.Kafka.Topic)
}
