package config

import (
	"os"
	"path/filepath"
	"testing"

	"inkwell/internal/store"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, store.DefaultFile, cfg.DataFile)
	assert.Equal(t, BackendFile, cfg.Backend)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inkwell.yaml")
	yaml := "data_file: /tmp/posts.txt\nbackend: hybrid\nredis_addr: redis:6379\nhttp:\n  addr: \":9000\"\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	t.Setenv("INKWELL_HTTP_ADDR", ":9100")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/posts.txt", cfg.DataFile)
	assert.Equal(t, BackendHybrid, cfg.Backend)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, ":9100", cfg.HTTP.Addr, "env should win over the file")
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{DataFile: "x.txt", Backend: BackendFile, RedisAddr: "r:1", Log: LogConfig{Level: "info"}}

	cfg := base
	assert.NoError(t, cfg.Validate())

	cfg = base
	cfg.Backend = "postgres"
	assert.ErrorContains(t, cfg.Validate(), "unknown backend")

	cfg = base
	cfg.DataFile = ""
	assert.ErrorContains(t, cfg.Validate(), "data_file")

	cfg = base
	cfg.Backend = BackendHybrid
	cfg.RedisAddr = ""
	assert.ErrorContains(t, cfg.Validate(), "redis_addr")

	cfg = base
	cfg.Log.Level = "loud"
	assert.ErrorContains(t, cfg.Validate(), "log level")
}
