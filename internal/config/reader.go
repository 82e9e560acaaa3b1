package config

import (
	"fmt"
	"math"
	"net/url"

	"github.com/ilyakaznacheev/cleanenv"
)

type Reader interface {
	Read() (*Config, error)
}

type EnvReader struct{}

func NewEnvReader() EnvReader {
	return EnvReader{}
}

func (EnvReader) Read() (*Config, error) {
	cfg := new(Config)
	err := cleanenv.ReadEnv(cfg)
	if err != nil {
		return nil, err
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the values cleanenv cannot express with tags.
func (c *Config) Validate() error {
	switch c.Env {
	case EnvDev, EnvProd, EnvLocal:
	default:
		return fmt.Errorf("unknown env: %s", c.Env)
	}

	switch c.Ordering.Strategy {
	case OrderingStrategyRenumber, OrderingStrategySparse:
	default:
		return fmt.Errorf("unknown ordering strategy: %s", c.Ordering.Strategy)
	}

	gap := c.Ordering.Gap
	if gap <= 0 || math.IsNaN(gap) || math.IsInf(gap, 0) {
		return fmt.Errorf("ordering gap must be a positive number, got %v", gap)
	}

	for _, origin := range c.HTTP.AllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || u.Path != "" {
			return fmt.Errorf("allowed origin must be scheme://host[:port], got %q", origin)
		}
	}

	if c.Realtime.SendBuffer <= 0 {
		return fmt.Errorf("realtime send buffer must be positive, got %d", c.Realtime.SendBuffer)
	}
	if c.Realtime.PingInterval >= c.Realtime.PongTimeout {
		return fmt.Errorf("realtime ping interval (%s) must be shorter than pong timeout (%s)",
			c.Realtime.PingInterval, c.Realtime.PongTimeout)
	}
	return nil
}
