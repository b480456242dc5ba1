package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"relaybot/internal/config"
	"relaybot/internal/membership"
	"relaybot/pkg/logx"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		Token:             "123:abc",
		StartMessage:      "hi",
		CommandNotAllowed: "no",
		AddIgnore:         "ai",
		RemoveIgnore:      "ri",
		ErrorIgnore:       "ei",
		AddListener:       "al",
		RemoveListener:    "rl",
		ErrorListener:     "el",
		ProxyActivateCode: lo.ToPtr("CODE"),
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestSettingsFromConfig(t *testing.T) {
	req := require.New(t)
	cfg := baseConfig()
	cfg.AnswerAfterMessage = lo.ToPtr("thanks")
	cfg.SpamControl = &config.SpamControlConfig{Delay: 5, DelayedMessage: "wait"}

	s := settingsFromConfig(cfg)
	req.Equal("CODE", s.ActivateCode)
	req.Equal("al", s.AddListener)
	req.Equal("thanks", *s.AnswerAfterMessage)
	req.Nil(s.AnswerAfterMessageIgnored)
	req.Equal(int64(5), s.SpamControl.Delay)
	req.Equal("wait", s.SpamControl.DelayedMessage)

	// The snapshot must not alias the config it came from.
	*cfg.AnswerAfterMessage = "changed"
	req.Equal("thanks", *s.AnswerAfterMessage)

	cfg.ProxyActivateCode = nil
	cfg.SpamControl = nil
	s = settingsFromConfig(cfg)
	req.Empty(s.ActivateCode)
	req.Nil(s.SpamControl)
}

func TestComponentConfigs(t *testing.T) {
	req := require.New(t)
	cfg := baseConfig()

	ac, err := adapterConfig(cfg)
	req.NoError(err)
	req.Equal(defaultPollTimeout, ac.PollTimeout)
	req.Equal(float64(config.DefaultRatePerSec), ac.RatePerSec)

	dc, err := dispatchConfig(cfg)
	req.NoError(err)
	req.Equal(defaultDispatchTimeout, dc.Timeout)

	sc, err := storageConfig(cfg)
	req.NoError(err)
	req.Equal("none", sc.Driver)
	req.Equal(time.Second, sc.BusyTimeout)

	oc := opsConfig(cfg)
	req.False(oc.Enabled)
	req.Equal(config.DefaultOpsAddr, oc.Addr)

	cfg.Dispatch.Timeout = "later"
	_, err = dispatchConfig(cfg)
	req.ErrorContains(err, "dispatch.timeout")

	cfg.Stores.CheckpointTimeout = "1m"
	d, err := checkpointTimeout(cfg)
	req.NoError(err)
	req.Equal(time.Minute, d)
}

func TestOpenStoresLoadsFiles(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	cfg := baseConfig()
	cfg.Stores.ListenersPath = filepath.Join(dir, "data", "listening_clients.txt")
	cfg.Stores.IgnoredPath = filepath.Join(dir, "data", "ignored_clients.txt")
	req.NoError(os.MkdirAll(filepath.Join(dir, "data"), 0o755))
	req.NoError(os.WriteFile(cfg.Stores.ListenersPath, []byte("1\n2\nnope\n"), 0o600))

	listeners, ignored, err := openStores(cfg, logx.Nop())
	req.NoError(err)
	defer listeners.Close()
	defer ignored.Close()

	req.Equal(2, size(listeners))
	req.Equal(0, size(ignored))

	a := &App{listeners: listeners, ignored: ignored}
	req.NoError(ignored.Mutate(func(s membership.Set) membership.Set { s.Add(7); return s }))
	req.NoError(a.checkpoint(context.Background()))

	b, err := os.ReadFile(cfg.Stores.IgnoredPath)
	req.NoError(err)
	req.Equal("7\n", string(b))
}

func openFDs(t *testing.T) int {
	t.Helper()
	ents, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skip("no /proc/self/fd")
	}
	return len(ents)
}

func TestNewAppClosesStoresOnError(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	req.NoError(os.WriteFile(blocker, nil, 0o600))

	cfgPath := filepath.Join(dir, "config.yaml")
	req.NoError(os.WriteFile(cfgPath, []byte(`
token: "123:abc"
start_message: hi
command_not_allowed: "no"
add_ignore: ai
remove_ignore: ri
error_ignore: ei
add_listener: al
remove_listener: rl
error_listener: el
proxy_activate_code: CODE
stores:
  listeners_path: `+filepath.Join(dir, "listening_clients.txt")+`
  ignored_path: `+filepath.Join(dir, "ignored_clients.txt")+`
audit:
  driver: file
  path: `+filepath.Join(blocker, "audit")+`
`), 0o600))

	before := openFDs(t)
	_, err := NewApp(cfgPath)
	req.ErrorContains(err, "audit")
	req.FileExists(filepath.Join(dir, "listening_clients.txt"))
	req.Equal(before, openFDs(t))
}

func TestLatestKeepsNewest(t *testing.T) {
	sub := make(chan *config.Config, 3)
	a, b := &config.Config{Token: "a"}, &config.Config{Token: "b"}
	sub <- a
	sub <- b
	require.Same(t, b, latest(sub, &config.Config{}))
	require.Empty(t, sub)
}
