package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port     string
		LogLevel string
	}
	Store struct {
		// memory, redis, postgres or sqlite
		Backend string
	}
	Database struct {
		DSN string
	}
	SQLite struct {
		Path string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	JWT struct {
		Secret string
		TTL    time.Duration
	}
	Admin struct {
		Secret string
	}
	Game struct {
		StartingWinnings int
		EvaluateDelay    time.Duration
		MaxRetries       int
		MaxAdvice        int
	}
	Matchmaker struct {
		TTLSeconds int
	}
	NATS struct {
		URL           string
		Stream        string
		SubjectPrefix string
	}
	OpenAI struct {
		APIKey     string
		Model      string
		ImageModel string
	}
}

var C Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.loglevel", "info")
	v.SetDefault("store.backend", "memory")
	v.SetDefault("sqlite.path", "chipclash.db")
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("jwt.ttl", 12*time.Hour)
	v.SetDefault("game.startingwinnings", 0)
	v.SetDefault("game.evaluatedelay", 250*time.Millisecond)
	v.SetDefault("game.maxretries", 5)
	v.SetDefault("game.maxadvice", 3)
	v.SetDefault("matchmaker.ttlseconds", 300)
	v.SetDefault("nats.stream", "CHIPCLASH_ROOMS")
	v.SetDefault("nats.subjectprefix", "chipclash")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.imagemodel", "dall-e-3")
}

// Load reads .env (if present), then the YAML file, then CHIPCLASH_*
// environment overrides such as CHIPCLASH_REDIS_ADDR.
func Load(path string) error {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("chipclash")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	C = c
	return nil
}
