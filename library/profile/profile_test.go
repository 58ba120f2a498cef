package profile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type demoConfig struct {
	Name string `json:"name"`
	Bind string `json:"bind"`
	Port int    `json:"port"`
}

func TestFileReaderJSONC(t *testing.T) {
	raw := `{
	// 服务名
	"name": "demo", /* 行内注释 */
	"bind": "https://example.com//path", // 字符串里的 // 不是注释
	"port": 8080
}`
	name := filepath.Join(t.TempDir(), "demo.jsonc")
	require.NoError(t, os.WriteFile(name, []byte(raw), 0o644))

	cfg, err := NewFile[demoConfig](name).Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, "demo", cfg.Name)
	require.Equal(t, "https://example.com//path", cfg.Bind)
	require.Equal(t, 8080, cfg.Port)
}

func TestFileReaderMissing(t *testing.T) {
	_, err := NewFile[demoConfig](filepath.Join(t.TempDir(), "nope.jsonc")).Read(context.Background())
	require.Error(t, err)
}
