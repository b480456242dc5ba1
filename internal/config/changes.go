package config

import (
	"reflect"
)

// Changes lists what differs between two committed configs.
type Changes struct {
	// Sections that changed and are applied live.
	Live []string
	// Keys that changed but only take effect after a restart.
	RestartRequired []string
}

func (c Changes) Empty() bool { return len(c.Live) == 0 && len(c.RestartRequired) == 0 }

// Diff never reports secret values, only key names.
func Diff(oldCfg, newCfg *Config) Changes {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var out Changes
	live := func(name string, changed bool) {
		if changed {
			out.Live = append(out.Live, name)
		}
	}
	restart := func(name string, changed bool) {
		if changed {
			out.RestartRequired = append(out.RestartRequired, name)
		}
	}

	live("replies", !reflect.DeepEqual(replies(oldCfg), replies(newCfg)))
	live("proxy_activate_code", deref(oldCfg.ProxyActivateCode) != deref(newCfg.ProxyActivateCode))
	live("spam_control", !reflect.DeepEqual(oldCfg.SpamControl, newCfg.SpamControl))
	live("logging", oldCfg.Logging != newCfg.Logging)

	restart("token", oldCfg.Token != newCfg.Token)
	restart("telegram", oldCfg.Telegram != newCfg.Telegram)
	restart("stores", oldCfg.Stores != newCfg.Stores)
	restart("dispatch", oldCfg.Dispatch != newCfg.Dispatch)
	restart("audit", oldCfg.Audit != newCfg.Audit)
	restart("ops", oldCfg.Ops != newCfg.Ops)
	return out
}

func replies(c *Config) []string {
	return []string{
		c.StartMessage, c.CommandNotAllowed,
		c.AddIgnore, c.RemoveIgnore, c.ErrorIgnore,
		c.AddListener, c.RemoveListener, c.ErrorListener,
		deref(c.MessageNotTextError), deref(c.AnswerAfterMessage), deref(c.AnswerAfterMessageIgnored),
	}
}

func deref(s *string) string {
	if s == nil {
		return "\x00"
	}
	return *s
}
