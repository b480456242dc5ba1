package app

import (
	"time"

	"github.com/samber/lo"

	"relaybot/internal/config"
	"relaybot/internal/observability/ops"
	"relaybot/internal/relay"
	"relaybot/internal/storage"
	telegram "relaybot/internal/transport/telegram/adapter"
	"relaybot/internal/transport/telegram/router"
	"relaybot/pkg/logx"
)

const (
	defaultPollTimeout       = 10 * time.Second
	defaultDispatchTimeout   = 30 * time.Second
	defaultCheckpointTimeout = 10 * time.Second
)

// settingsFromConfig copies the reply strings into an engine snapshot. The
// optional strings are cloned so a later config cannot alias them.
func settingsFromConfig(cfg *config.Config) relay.Settings {
	s := relay.Settings{
		StartMessage:      cfg.StartMessage,
		CommandNotAllowed: cfg.CommandNotAllowed,
		AddIgnore:         cfg.AddIgnore,
		RemoveIgnore:      cfg.RemoveIgnore,
		ErrorIgnore:       cfg.ErrorIgnore,
		AddListener:       cfg.AddListener,
		RemoveListener:    cfg.RemoveListener,
		ErrorListener:     cfg.ErrorListener,

		MessageNotTextError:       cloneStr(cfg.MessageNotTextError),
		AnswerAfterMessage:        cloneStr(cfg.AnswerAfterMessage),
		AnswerAfterMessageIgnored: cloneStr(cfg.AnswerAfterMessageIgnored),
	}
	if cfg.ProxyActivateCode != nil {
		s.ActivateCode = *cfg.ProxyActivateCode
	}
	if sc := cfg.SpamControl; sc != nil {
		s.SpamControl = &relay.SpamControl{Delay: sc.Delay, DelayedMessage: sc.DelayedMessage}
	}
	return s
}

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	return lo.ToPtr(*p)
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func adapterConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, defaultPollTimeout)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       cfg.Token,
		PollTimeout: poll,
		RatePerSec:  cfg.Telegram.RatePerSec,
	}, nil
}

func dispatchConfig(cfg *config.Config) (router.Config, error) {
	timeout, err := config.ParseDurationOrDefault("dispatch.timeout", cfg.Dispatch.Timeout, defaultDispatchTimeout)
	if err != nil {
		return router.Config{}, err
	}
	return router.Config{
		Workers:   cfg.Dispatch.Workers,
		QueueSize: cfg.Dispatch.QueueSize,
		Timeout:   timeout,
	}, nil
}

func storageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("audit.busy_timeout", cfg.Audit.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Audit.Driver,
		Path:        cfg.Audit.Path,
		BusyTimeout: busy,
	}, nil
}

func opsConfig(cfg *config.Config) ops.Config {
	return ops.Config{
		Enabled:      cfg.Ops.Enabled,
		Addr:         cfg.Ops.Addr,
		Prefix:       cfg.Ops.Prefix,
		Token:        cfg.Ops.Token,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second, // pprof profile default is 30s
		IdleTimeout:  60 * time.Second,
	}
}

func checkpointTimeout(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("stores.checkpoint_timeout", cfg.Stores.CheckpointTimeout, defaultCheckpointTimeout)
}
