package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort              string        `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL           string        `env:"DATABASE_URL,required"`
	LLMAPIKey             string        `env:"LLM_API_KEY"`
	LLMBaseURL            string        `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMModel              string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	EmbeddingModel        string        `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	EmbeddingDimensions   int           `env:"EMBEDDING_DIMENSIONS" envDefault:"1536"`
	RedisAddr             string        `env:"REDIS_ADDR"`
	RedisPassword         string        `env:"REDIS_PASSWORD"`
	RedisDB               int           `env:"REDIS_DB" envDefault:"0"`
	EmotionContextTTL     time.Duration `env:"EMOTION_CONTEXT_TTL" envDefault:"24h"`
	ReinforcementInterval int           `env:"REINFORCEMENT_INTERVAL" envDefault:"5"`
	ModelAssistedEmotion  bool          `env:"MODEL_ASSISTED_EMOTION" envDefault:"false"`
}

// LLMEnabled indica si hay credenciales para los caminos asistidos por modelo.
func (c *Config) LLMEnabled() bool {
	return c.LLMAPIKey != ""
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
