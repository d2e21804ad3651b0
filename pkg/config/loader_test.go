package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	require.NoError(t, Load(writeConfig(t, "")))

	cfg, err := Decode()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 5*time.Second, cfg.Remote.DialTimeout)
	assert.Equal(t, "us-east-1", cfg.S3.Region)
	assert.Empty(t, cfg.Meta.Driver)
}

func TestLoad_FileAndEnv(t *testing.T) {
	viper.Reset()
	path := writeConfig(t, `
log:
  level: debug
  format: json
meta:
  driver: sqlite
  dsn: /tmp/meta.db
ca:
  compression_level: 9
s3:
  endpoint: http://localhost:9000
  access_key_id: admin
  force_path_style: true
`)
	t.Setenv("C2FS_S3_SECRET_ACCESS_KEY", "password")
	t.Setenv("C2FS_CACHE_TTL", "1m")

	require.NoError(t, Load(path))
	cfg, err := Decode()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "sqlite", cfg.Meta.Driver)
	assert.Equal(t, 9, cfg.CA.CompressionLevel)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "http://localhost:9000", cfg.S3.Endpoint)
	assert.Equal(t, "admin", cfg.S3.AccessKeyID)
	assert.Equal(t, "password", cfg.S3.SecretAccessKey)
	assert.True(t, cfg.S3.ForcePathStyle)
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"bad level", "log.level", "loud"},
		{"bad format", "log.format", "xml"},
		{"bad driver", "meta.driver", "mysql"},
		{"bad compression", "ca.compression_level", 42},
		{"bad redis url", "cache.redis_url", "not a url"},
		{"bad listen", "server.listen", "nowhere"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			require.NoError(t, Load(writeConfig(t, "")))
			viper.Set(tt.key, tt.val)

			_, err := Decode()
			assert.Error(t, err)
		})
	}
}

func TestDecode_DriverNeedsDSN(t *testing.T) {
	viper.Reset()
	require.NoError(t, Load(writeConfig(t, "meta:\n  driver: postgres\n")))
	_, err := Decode()
	assert.Error(t, err)
}

func TestLoad_BrokenFile(t *testing.T) {
	viper.Reset()
	assert.Error(t, Load(writeConfig(t, "log: [unclosed")))
}
