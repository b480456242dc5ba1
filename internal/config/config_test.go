package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const minimalJSON = `{
  "token": "123:abc",
  "start_message": "hi",
  "command_not_allowed": "no",
  "add_ignore": "ai",
  "remove_ignore": "ri",
  "error_ignore": "ei",
  "add_listener": "al",
  "remove_listener": "rl",
  "error_listener": "el",
  "proxy_activate_code": "ABC123"
}`

const fullYAML = `
token: "123:abc"
start_message: hi
command_not_allowed: "no"
add_ignore: ai
remove_ignore: ri
error_ignore: ei
add_listener: al
remove_listener: rl
error_listener: el
proxy_activate_code: ""
answer_after_message: thanks
spam_control:
  delay: 10
  delayed_message: slow down
telegram:
  poll_timeout: 30s
  rate_per_sec: 5
stores:
  listeners_path: data/listeners.txt
  checkpoint: "*/10 * * * *"
dispatch:
  workers: 4
  timeout: 15s
audit:
  driver: sqlite
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func noEnv() (Env, error) { return Env{}, nil }

func TestDecodeJSON(t *testing.T) {
	req := require.New(t)
	cfg, err := Decode("config.json", []byte(minimalJSON))
	req.NoError(err)
	req.Equal("123:abc", cfg.Token)
	req.NotNil(cfg.ProxyActivateCode)
	req.Equal("ABC123", *cfg.ProxyActivateCode)
	req.Nil(cfg.SpamControl)
	req.Nil(cfg.AnswerAfterMessage)
}

func TestDecodeYAML(t *testing.T) {
	req := require.New(t)
	cfg, err := Decode("config.yaml", []byte(fullYAML))
	req.NoError(err)
	req.Equal("", *cfg.ProxyActivateCode)
	req.Equal("thanks", *cfg.AnswerAfterMessage)
	req.Equal(&SpamControlConfig{Delay: 10, DelayedMessage: "slow down"}, cfg.SpamControl)
	req.Equal(float64(5), cfg.Telegram.RatePerSec)
	req.Equal(4, cfg.Dispatch.Workers)
	req.Equal("*/10 * * * *", cfg.Stores.Checkpoint)

	cfg.ApplyDefaults()
	req.NoError(Validate(cfg))
	req.Equal(DefaultIgnoredPath, cfg.Stores.IgnoredPath)
	req.Equal("./relaybot_audit.db", cfg.Audit.Path)
}

func TestDecodeRejectsUnknownAndTrailing(t *testing.T) {
	_, err := Decode("c.json", []byte(`{"token":"x","tokn":"y"}`))
	require.ErrorContains(t, err, "unknown field")

	_, err = Decode("c.json", []byte(`{"token":"x"}{"token":"y"}`))
	require.ErrorContains(t, err, "trailing data")

	_, err = Decode("c.json", []byte(`{"token":"x"} garbage`))
	require.ErrorContains(t, err, "trailing data")

	cfg, err := Decode("c.json", []byte("{\"token\":\"x\"}\n\n"))
	require.NoError(t, err)
	require.Equal(t, "x", cfg.Token)

	_, err = Decode("c.yml", []byte("telegram:\n  poll: 1s\n"))
	require.ErrorContains(t, err, "unknown field")
}

func TestValidateReportsJSONKeys(t *testing.T) {
	cfg, err := Decode("c.json", []byte(`{"token":"x","spam_control":{"delay":-1}}`))
	require.NoError(t, err)
	cfg.ApplyDefaults()

	err = Validate(cfg)
	require.Error(t, err)
	msg := err.Error()
	for _, key := range []string{
		"start_message", "proxy_activate_code", "error_listener",
		"spam_control.delay", "spam_control.delayed_message",
	} {
		require.Contains(t, msg, key)
	}
	require.NotContains(t, msg, "token:")
}

func TestValidateDurationsAndSchedule(t *testing.T) {
	cfg, err := Decode("c.json", []byte(minimalJSON))
	require.NoError(t, err)
	cfg.ApplyDefaults()
	cfg.Dispatch.Timeout = "soon"
	cfg.Stores.Checkpoint = "whenever"
	cfg.Logging.Level = "loud"
	cfg.Audit.Driver = "mongo"

	err = Validate(cfg)
	require.Error(t, err)
	for _, key := range []string{"dispatch.timeout", "stores.checkpoint", "logging.level", "audit.driver"} {
		require.Contains(t, err.Error(), key)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RELAYBOT_TOKEN", "from-env")
	t.Setenv("RELAYBOT_PROXY_ACTIVATE_CODE", "SECRET")
	t.Setenv("RELAYBOT_LOG_LEVEL", "debug")

	m := NewConfigManager(writeFile(t, "config.json", minimalJSON))
	cfg, err := m.Load()
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Token)
	require.Equal(t, "SECRET", *cfg.ProxyActivateCode)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(p, []byte("RELAYBOT_LOG_LEVEL=warn\n"), 0o600))
	t.Setenv("RELAYBOT_LOG_LEVEL", "")
	require.NoError(t, os.Unsetenv("RELAYBOT_LOG_LEVEL"))

	require.NoError(t, LoadDotEnv(p, filepath.Join(dir, "missing.env")))
	e, err := ReadEnv()
	require.NoError(t, err)
	require.Equal(t, "warn", e.LogLevel)
}

func TestLoadDefaultsAndCommit(t *testing.T) {
	req := require.New(t)
	m := NewConfigManager(writeFile(t, "config.json", minimalJSON))
	m.env = noEnv

	cfg, err := m.Load()
	req.NoError(err)
	req.Same(cfg, m.Get())
	req.Equal(DefaultListenersPath, cfg.Stores.ListenersPath)
	req.Equal(float64(DefaultRatePerSec), cfg.Telegram.RatePerSec)
	req.Equal("none", cfg.Audit.Driver)
	req.Equal(DefaultOpsAddr, cfg.Ops.Addr)
}

func TestLoadRejectsInvalid(t *testing.T) {
	m := NewConfigManager(writeFile(t, "config.json", `{"token":"x"}`))
	m.env = noEnv
	_, err := m.Load()
	require.Error(t, err)
	require.Nil(t, m.Get())
}

func TestWatchPublishesValidReload(t *testing.T) {
	req := require.New(t)
	path := writeFile(t, "config.json", minimalJSON)
	m := NewConfigManager(path)
	m.env = noEnv
	_, err := m.Load()
	req.NoError(err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// Invalid edits are never published.
	req.NoError(os.WriteFile(path, []byte(`{"token":"x"}`), 0o600))
	time.Sleep(2 * reloadDebounce)

	updated := strings.Replace(minimalJSON, `"start_message": "hi"`, `"start_message": "hello"`, 1)
	req.NoError(os.WriteFile(path, []byte(updated), 0o600))

	select {
	case cfg := <-ch:
		req.Equal("hello", cfg.StartMessage)
		req.Same(cfg, m.Get())
	case <-time.After(5 * time.Second):
		t.Fatal("no reload published")
	}
}

func TestPublishKeepsNewest(t *testing.T) {
	m := NewConfigManager("unused.json")
	ch := m.Subscribe(1)
	a, b := &Config{Token: "a"}, &Config{Token: "b"}
	m.publish(a)
	m.publish(b)
	require.Same(t, b, <-ch)

	m.Unsubscribe(ch)
	_, ok := <-ch
	require.False(t, ok)
}

func TestDiff(t *testing.T) {
	oldCfg, err := Decode("c.json", []byte(minimalJSON))
	require.NoError(t, err)
	newCfg, err := Decode("c.json", []byte(minimalJSON))
	require.NoError(t, err)
	require.True(t, Diff(oldCfg, newCfg).Empty())

	newCfg.StartMessage = "changed"
	newCfg.SpamControl = &SpamControlConfig{Delay: 3, DelayedMessage: "wait"}
	newCfg.Token = "other"
	newCfg.Dispatch.Workers = 8

	d := Diff(oldCfg, newCfg)
	require.Equal(t, []string{"replies", "spam_control"}, d.Live)
	require.Equal(t, []string{"token", "dispatch"}, d.RestartRequired)
}

func TestParseDurationOrDefault(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, d)

	d, err = ParseDurationOrDefault("x", "250ms", time.Second)
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, d)

	_, err = ParseDurationField("x", "-1s")
	require.ErrorContains(t, err, "x: duration must be >= 0")
}
