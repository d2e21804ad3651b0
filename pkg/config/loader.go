package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"c2fs/pkg/storage/s3"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config 是全部配置项的类型化视图
type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Meta   MetaConfig   `mapstructure:"meta"`
	CA     CAConfig     `mapstructure:"ca"`
	Remote RemoteConfig `mapstructure:"remote"`
	Server ServerConfig `mapstructure:"server"`

	// S3 单独用 mapstructure 解码
	S3 s3.Config `mapstructure:"-"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

type CacheConfig struct {
	// 为空表示不启用 Redis
	RedisURL string        `mapstructure:"redis_url" validate:"omitempty,url"`
	TTL      time.Duration `mapstructure:"ttl" validate:"min=0"`
}

type MetaConfig struct {
	Driver string `mapstructure:"driver" validate:"omitempty,oneof=sqlite postgres"`
	DSN    string `mapstructure:"dsn" validate:"required_with=Driver"`
}

type CAConfig struct {
	// 为空表示引用计数存在对象池里
	RefcountDB       string `mapstructure:"refcount_db"`
	CompressionLevel int    `mapstructure:"compression_level" validate:"min=-2,max=9"`
}

type RemoteConfig struct {
	DialTimeout time.Duration `mapstructure:"dial_timeout" validate:"min=0"`
}

type ServerConfig struct {
	Listen     string `mapstructure:"listen" validate:"required,hostname_port"`
	Descriptor string `mapstructure:"descriptor"`
}

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		// 搜索顺序：当前目录 -> ./.c2fs -> ~/.c2fs
		viper.AddConfigPath(".")
		viper.AddConfigPath(".c2fs")
		viper.AddConfigPath(filepath.Join(home, ".c2fs"))

		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// C2FS_CACHE_REDIS_URL 等
	viper.SetEnvPrefix("C2FS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("fatal error config file: %w", err)
		}
		// 没有配置文件时只用默认值和环境变量
	} else {
		fmt.Fprintln(os.Stderr, "🔧 Using config file:", viper.ConfigFileUsed())
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("log.level", "warn")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("cache.redis_url", "")
	viper.SetDefault("cache.ttl", 24*time.Hour)

	viper.SetDefault("meta.driver", "")
	viper.SetDefault("meta.dsn", "")

	viper.SetDefault("ca.refcount_db", "")
	viper.SetDefault("ca.compression_level", 0)

	viper.SetDefault("s3.region", "us-east-1")
	viper.SetDefault("s3.endpoint", "")
	viper.SetDefault("s3.access_key_id", "")
	viper.SetDefault("s3.secret_access_key", "")
	viper.SetDefault("s3.force_path_style", false)

	viper.SetDefault("remote.dial_timeout", 5*time.Second)

	viper.SetDefault("server.listen", "127.0.0.1:7070")
	viper.SetDefault("server.descriptor", "")
}

var validate = validator.New()

// Decode 把当前 Viper 状态解码为 Config 并校验
func Decode() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// AllSettings 才能看到来自环境变量的 s3.* 值
	raw, _ := viper.AllSettings()["s3"].(map[string]any)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg.S3,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode s3 config: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
