package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"sutext.github.io/cord/xerr"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cord.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
timeoutMS: 2500
maxFrameSize: 65536
pingIntervalMS: 15000
pongTimeoutMS: 4000
headers:
  Authorization: Bearer tok
extensions:
  permessage-deflate: client_max_window_bits
`)
	options, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	opts := newOptions(options...)
	if opts.timeout != 2500*time.Millisecond {
		t.Errorf("timeout = %v", opts.timeout)
	}
	if opts.maxFrameSize != 65536 {
		t.Errorf("maxFrameSize = %d", opts.maxFrameSize)
	}
	if opts.pingInterval != 15*time.Second || opts.pongTimeout != 4*time.Second {
		t.Errorf("heartbeat = %v/%v", opts.pingInterval, opts.pongTimeout)
	}
	if opts.headers["Authorization"] != "Bearer tok" {
		t.Errorf("headers = %v", opts.headers)
	}
	if opts.extensions["permessage-deflate"] != "client_max_window_bits" {
		t.Errorf("extensions = %v", opts.extensions)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "headers:\n  X-Trace: abc\n")
	options, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	opts := newOptions(options...)
	if opts.timeout != 5*time.Second {
		t.Errorf("default timeout lost: %v", opts.timeout)
	}
	if opts.pingInterval != 30*time.Second {
		t.Errorf("default heartbeat lost: %v", opts.pingInterval)
	}
}

func TestLoadConfigDisableHeartbeat(t *testing.T) {
	path := writeConfig(t, "pingIntervalMS: 0\n")
	options, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	opts := newOptions(options...)
	if opts.pingInterval != 0 {
		t.Errorf("explicit zero must disable the heartbeat, got %v", opts.pingInterval)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); xerr.CodeOf(err) != xerr.BadArgument {
		t.Errorf("missing file: want bad argument, got %v", err)
	}
	path := writeConfig(t, "timeoutMS: [broken\n")
	if _, err := LoadConfig(path); xerr.CodeOf(err) != xerr.BadArgument {
		t.Errorf("bad yaml: want bad argument, got %v", err)
	}
}
