package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvPrefix    = "RUBRIC_"
	EnvConfig    = "RUBRIC_CONFIG"
	EnvDotenv    = "RUBRIC_ENV_FILE"
	EnvGeminiKey = "GEMINI_API_KEY"

	defaultDotenv = ".env"
	nestedSep     = "__"
)

// Load builds a Config by layering defaults, an optional YAML file, an
// optional .env file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) at path, or RUBRIC_CONFIG when path is empty
//  3. .env (RUBRIC_ENV_FILE or ./.env), which only sets unset variables
//  4. env (prefix RUBRIC_, "__" separates nested keys)
func Load(_ context.Context, path string) (*Config, error) {
	dotenv := os.Getenv(EnvDotenv)
	if dotenv == "" {
		dotenv = defaultDotenv
	}
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, dotenv, err)
	}

	k := koanf.New(".")
	if err := k.Load(defaults{New()}, yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: defaults: %w", ErrLoadConfig, err)
	}

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// RUBRIC_RESULTS_DIR -> results_dir,
	// RUBRIC_COURSES__7009ICT__TARGET_MEAN -> courses.7009ICT.target_mean
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = os.Getenv(EnvGeminiKey)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	parts := strings.Split(strings.TrimPrefix(s, EnvPrefix), nestedSep)
	for i, p := range parts {
		// course codes keep their case
		if i == 1 && parts[0] == "courses" {
			continue
		}
		parts[i] = strings.ToLower(p)
	}
	return strings.Join(parts, ".")
}

// defaults feeds New() to koanf as YAML so later layers merge key by key.
type defaults struct{ cfg *Config }

func (d defaults) ReadBytes() ([]byte, error) {
	return yamlv3.Marshal(d.cfg)
}

func (d defaults) Read() (map[string]interface{}, error) {
	return nil, errors.New("defaults provider does not support Read")
}
