package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "RELAYBOT"

// Env holds the secrets that may live outside the config file.
//
//	RELAYBOT_TOKEN, RELAYBOT_PROXY_ACTIVATE_CODE, RELAYBOT_LOG_LEVEL
type Env struct {
	Token             string `envconfig:"TOKEN"`
	ProxyActivateCode string `envconfig:"PROXY_ACTIVATE_CODE"`
	LogLevel          string `envconfig:"LOG_LEVEL"`
}

// LoadDotEnv loads KEY=VALUE pairs from files into the process environment
// without overriding variables that are already set. Missing files are fine.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func ReadEnv() (Env, error) {
	var e Env
	err := envconfig.Process(EnvPrefix, &e)
	return e, err
}

// Apply overrides cfg with every non-empty variable.
func (e Env) Apply(cfg *Config) {
	if e.Token != "" {
		cfg.Token = e.Token
	}
	if e.ProxyActivateCode != "" {
		code := e.ProxyActivateCode
		cfg.ProxyActivateCode = &code
	}
	if e.LogLevel != "" {
		cfg.Logging.Level = e.LogLevel
	}
}
