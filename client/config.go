package client

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"sutext.github.io/cord/xerr"
)

type fileConfig struct {
	TimeoutMS      int               `yaml:"timeoutMS"`
	MaxFrameSize   int               `yaml:"maxFrameSize"`
	PingIntervalMS *int              `yaml:"pingIntervalMS"`
	PongTimeoutMS  int               `yaml:"pongTimeoutMS"`
	Headers        map[string]string `yaml:"headers"`
	Extensions     map[string]string `yaml:"extensions"`
}

// LoadConfig reads a YAML client configuration and returns the matching
// options. Missing fields keep their defaults; an explicit
// `pingIntervalMS: 0` disables the heartbeat.
func LoadConfig(path string) ([]Option, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerr.Errorf(xerr.BadArgument, "read config: %v", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, xerr.Errorf(xerr.BadArgument, "parse config: %v", err)
	}
	var options []Option
	if cfg.TimeoutMS > 0 {
		options = append(options, WithTimeout(time.Duration(cfg.TimeoutMS)*time.Millisecond))
	}
	if cfg.MaxFrameSize > 0 {
		options = append(options, WithMaxFrameSize(cfg.MaxFrameSize))
	}
	if cfg.PingIntervalMS != nil || cfg.PongTimeoutMS > 0 {
		defaults := newOptions()
		interval, timeout := defaults.pingInterval, defaults.pongTimeout
		if cfg.PingIntervalMS != nil {
			interval = time.Duration(*cfg.PingIntervalMS) * time.Millisecond
		}
		if cfg.PongTimeoutMS > 0 {
			timeout = time.Duration(cfg.PongTimeoutMS) * time.Millisecond
		}
		options = append(options, WithHeartbeat(interval, timeout))
	}
	for name, value := range cfg.Headers {
		options = append(options, WithHeader(name, value))
	}
	for name, params := range cfg.Extensions {
		options = append(options, WithExtension(name, params))
	}
	return options, nil
}
