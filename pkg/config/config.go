package config

import (
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	config       = viper.New()
	configHolder atomic.Value
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	Server     struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Minio struct {
		Endpoint   string `mapstructure:"ENDPOINT"`
		AccessKey  string `mapstructure:"ACCESS_KEY"`
		SecretKey  string `mapstructure:"SECRET_KEY"`
		Secure     bool   `mapstructure:"SECURE"`
		BucketName string `mapstructure:"BUCKET_NAME"`
		PublicURL  string `mapstructure:"PUBLIC_URL"`
	} `mapstructure:"MINIO"`
	SiliconFlow struct {
		BaseURL        string        `mapstructure:"BASE_URL"`
		APIKey         string        `mapstructure:"API_KEY"`
		TranslateModel string        `mapstructure:"TRANSLATE_MODEL"`
		ImageModel     string        `mapstructure:"IMAGE_MODEL"`
		Timeout        time.Duration `mapstructure:"TIMEOUT"`
	} `mapstructure:"SILICONFLOW"`
	Email struct {
		Host       string `mapstructure:"HOST"`
		Port       int    `mapstructure:"PORT"`
		User       string `mapstructure:"USER"`
		Password   string `mapstructure:"PASSWORD"`
		From       string `mapstructure:"FROM"`
		AdminEmail string `mapstructure:"ADMIN_EMAIL"`
	} `mapstructure:"EMAIL"`
	Session struct {
		Name   string        `mapstructure:"NAME"`
		Secret string        `mapstructure:"SECRET"`
		TTL    time.Duration `mapstructure:"TTL"`
	} `mapstructure:"SESSION"`
	Generation struct {
		RegistrationGrant int64         `mapstructure:"REGISTRATION_GRANT"`
		PendingTimeout    time.Duration `mapstructure:"PENDING_TIMEOUT"`
		SweepInterval     time.Duration `mapstructure:"SWEEP_INTERVAL"`
	} `mapstructure:"GENERATION"`
	Watermark struct {
		Size  int    `mapstructure:"SIZE"`
		Label string `mapstructure:"LABEL"`
	} `mapstructure:"WATERMARK"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() *Config {
	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	setDefaults(config)

	if err := config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			zap.L().Error("failed to read config file", zap.Error(err))
			os.Exit(1)
		}
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	configHolder.Store(&cfg)

	config.OnConfigChange(func(e fsnotify.Event) {
		var newcfg Config
		if err := config.Unmarshal(&newcfg); err != nil {
			zap.L().Error("unable to reload config", zap.String("file", e.Name), zap.Error(err))
			return
		}
		configHolder.Store(&newcfg)
		zap.L().Info("config reloaded", zap.String("file", e.Name))
	})
	config.WatchConfig()

	return &cfg
}

// Current returns the most recently loaded configuration snapshot.
func Current() *Config {
	if v, ok := configHolder.Load().(*Config); ok {
		return v
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "tuliu-backend")
	v.SetDefault("HTTP_SERVER.ADDR", ":8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", time.Minute)
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("SILICONFLOW.TRANSLATE_MODEL", "Qwen/Qwen2.5-7B-Instruct")
	v.SetDefault("SILICONFLOW.IMAGE_MODEL", "black-forest-labs/FLUX.1-pro")
	v.SetDefault("SILICONFLOW.TIMEOUT", 60*time.Second)
	v.SetDefault("SESSION.NAME", "tuliu_session")
	v.SetDefault("SESSION.TTL", 7*24*time.Hour)
	v.SetDefault("GENERATION.REGISTRATION_GRANT", 10)
	v.SetDefault("GENERATION.PENDING_TIMEOUT", 15*time.Minute)
	v.SetDefault("GENERATION.SWEEP_INTERVAL", 5*time.Minute)
	v.SetDefault("WATERMARK.SIZE", 720)
	v.SetDefault("WATERMARK.LABEL", "Tuliu Preview")
}
