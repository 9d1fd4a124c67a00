package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/knx-monitor/internal/accessport"
	"github.com/nerrad567/knx-monitor/internal/infrastructure/config"
	"github.com/nerrad567/knx-monitor/internal/kdrive"
	"github.com/nerrad567/knx-monitor/internal/telegram"
)

// fakeLink is an open link that never receives frames.
type fakeLink struct {
	frames chan []byte
	once   sync.Once
}

func (l *fakeLink) Frames() <-chan []byte { return l.frames }

func (l *fakeLink) Send(context.Context, telegram.GroupAddress, []byte) error { return nil }

func (l *fakeLink) Close() error {
	l.once.Do(func() { close(l.frames) })
	return nil
}

type fakeDialer struct {
	err error
}

func (d fakeDialer) Dial(context.Context, string, func(kdrive.EventCode)) (kdrive.Link, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &fakeLink{frames: make(chan []byte)}, nil
}

// writeConfig writes a minimal config file and points KNXMONITOR_CONFIG at it.
func writeConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("KNXMONITOR_CONFIG", path)
}

const testConfig = `
target:
  address: 127.0.0.1
  port: 3671
logging:
  level: error
`

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"allocation", &accessport.AllocationError{}, exitAllocation},
		{"wrapped allocation", fmt.Errorf("run: %w", &accessport.AllocationError{}), exitAllocation},
		{"connection", &accessport.ConnectionError{Code: kdrive.ErrorCode(1)}, exitFailure},
		{"other", errors.New("boom"), exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Run("environment wins", func(t *testing.T) {
		t.Setenv("KNXMONITOR_CONFIG", "/etc/knxmonitor/config.yaml")
		if got := getConfigPath(); got != "/etc/knxmonitor/config.yaml" {
			t.Errorf("getConfigPath() = %q", got)
		}
	})

	t.Run("default when present", func(t *testing.T) {
		t.Setenv("KNXMONITOR_CONFIG", "")
		wd, err := os.Getwd()
		if err != nil {
			t.Fatal(err)
		}
		if err := os.Chdir(t.TempDir()); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = os.Chdir(wd) })
		if got := getConfigPath(); got != "" {
			t.Errorf("getConfigPath() = %q, want empty without a config file", got)
		}

		if err := os.MkdirAll("configs", 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(defaultConfigPath, []byte("{}"), 0o600); err != nil {
			t.Fatal(err)
		}
		if got := getConfigPath(); got != defaultConfigPath {
			t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
		}
	})
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("KNXMONITOR_CONFIG", "/nonexistent/path/config.yaml")

	err := run(context.Background(), strings.NewReader(""), &bytes.Buffer{})
	if err == nil {
		t.Fatal("run() should fail with a missing config file")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("error = %v, want loading config", err)
	}
	if exitCode(err) != exitFailure {
		t.Errorf("exitCode = %d, want %d", exitCode(err), exitFailure)
	}
}

func TestRun_ConnectionFailure(t *testing.T) {
	writeConfig(t, testConfig)

	err := runWith(context.Background(), strings.NewReader(""), &bytes.Buffer{},
		fakeDialer{err: errors.New("gateway unreachable")})

	var connErr *accessport.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("runWith() error = %v, want *ConnectionError", err)
	}
	if connErr.Target.String() != "127.0.0.1:3671" {
		t.Errorf("Target = %s", connErr.Target)
	}
	if exitCode(err) != exitFailure {
		t.Errorf("exitCode = %d, want %d", exitCode(err), exitFailure)
	}
}

func TestRun_CleanShutdownOnEOF(t *testing.T) {
	writeConfig(t, testConfig)

	if err := runWith(context.Background(), strings.NewReader(""), &bytes.Buffer{}, fakeDialer{}); err != nil {
		t.Fatalf("runWith() error = %v", err)
	}
}

func TestRun_CleanShutdownOnCancel(t *testing.T) {
	writeConfig(t, testConfig)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// stdin never yields a line, so only cancellation ends the wait.
	pr, pw := io.Pipe()
	defer pw.Close()

	if err := runWith(ctx, pr, &bytes.Buffer{}, fakeDialer{}); err != nil {
		t.Fatalf("runWith() error = %v", err)
	}
}

func TestRun_WithRecorder(t *testing.T) {
	writeConfig(t, testConfig)
	dbPath := filepath.Join(t.TempDir(), "knxmonitor.db")
	t.Setenv("KNXMONITOR_DATABASE_ENABLED", "true")
	t.Setenv("KNXMONITOR_DATABASE_PATH", dbPath)

	if err := runWith(context.Background(), strings.NewReader("\n"), &bytes.Buffer{}, fakeDialer{}); err != nil {
		t.Fatalf("runWith() error = %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database not created: %v", err)
	}
}

func TestBuildMonitorConfig_StartupWrite(t *testing.T) {
	writeConfig(t, testConfig+`
group_address: 1/2/3
log_level: fatal
startup_write:
  enabled: true
  payload: "0c33"
`)
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}

	mc, err := buildMonitorConfig(cfg)
	if err != nil {
		t.Fatalf("buildMonitorConfig() error = %v", err)
	}
	if mc.LogLevel != kdrive.LogFatal {
		t.Errorf("LogLevel = %v, want %v", mc.LogLevel, kdrive.LogFatal)
	}
	if mc.StartupWrite == nil {
		t.Fatal("StartupWrite = nil")
	}
	if mc.StartupWrite.Address != telegram.NewGroupAddress(1, 2, 3) {
		t.Errorf("Address = %s, want 1/2/3", mc.StartupWrite.Address)
	}
	if !bytes.Equal(mc.StartupWrite.Payload, []byte{0x0C, 0x33}) {
		t.Errorf("Payload = % x, want 0c 33", mc.StartupWrite.Payload)
	}
}

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestHealthCheck(t *testing.T) {
	healthy := checkFunc(func(context.Context) error { return nil })
	down := errors.New("not connected")
	failing := checkFunc(func(context.Context) error { return down })

	tests := []struct {
		name     string
		checks   []namedCheck
		wantErr  error
		wantName string
	}{
		{"no sinks", nil, nil, ""},
		{"all healthy", []namedCheck{{"mqtt", healthy}, {"database", healthy}}, nil, ""},
		{"first failure wins", []namedCheck{{"mqtt", healthy}, {"influxdb", failing}, {"database", failing}}, down, "influxdb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := healthCheck(context.Background(), tt.checks)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("healthCheck() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantName != "" && !strings.HasPrefix(err.Error(), tt.wantName+":") {
				t.Errorf("error = %q, want %s prefix", err, tt.wantName)
			}
		})
	}
}
