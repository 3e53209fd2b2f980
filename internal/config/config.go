package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type MailerConfig struct {
	Workers int `mapstructure:"workers"`
	Queue   int `mapstructure:"queue"`
}

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	Secret       string        `mapstructure:"secret"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	HistoryLimit int           `mapstructure:"history_limit"`
	ChatRate     int           `mapstructure:"chat_rate"`
	ChatInterval time.Duration `mapstructure:"chat_interval"`
	Mongo        MongoConfig   `mapstructure:"mongo"`
	Redis        RedisConfig   `mapstructure:"redis"`
	SMTP         SMTPConfig    `mapstructure:"smtp"`
	Mailer       MailerConfig  `mapstructure:"mailer"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "change-me")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("send_buffer", 64)
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("history_limit", 50)
	v.SetDefault("chat_rate", 20)
	v.SetDefault("chat_interval", "10s")
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "meetroom")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.channel_prefix", "meetroom")
	v.SetDefault("smtp.host", "localhost")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "noreply@meetroom.local")
	v.SetDefault("mailer.workers", 4)
	v.SetDefault("mailer.queue", 256)
}
