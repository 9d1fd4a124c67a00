// knxmonitor opens a KNXnet/IP access port and prints every telegram seen
// on the bus until a line is entered on stdin.
//
// Telegrams, access-port events and errors go to stdout; structured logs go
// to stderr. Optional sinks forward telegrams to MQTT, a SQLite address
// recorder and InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/knx-monitor/internal/accessport"
	"github.com/nerrad567/knx-monitor/internal/console"
	"github.com/nerrad567/knx-monitor/internal/forward"
	"github.com/nerrad567/knx-monitor/internal/infrastructure/config"
	"github.com/nerrad567/knx-monitor/internal/infrastructure/database"
	"github.com/nerrad567/knx-monitor/internal/infrastructure/influxdb"
	"github.com/nerrad567/knx-monitor/internal/infrastructure/logging"
	"github.com/nerrad567/knx-monitor/internal/infrastructure/mqtt"
	"github.com/nerrad567/knx-monitor/internal/kdrive"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// defaultConfigPath is used when KNXMONITOR_CONFIG is unset and the file exists.
const defaultConfigPath = "configs/config.yaml"

// Process exit codes.
const (
	exitOK         = 0
	exitFailure    = 1
	exitAllocation = 2
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx, os.Stdin, os.Stdout)
	cancel()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

// exitCode maps the result of run to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, accessport.ErrAllocation):
		return exitAllocation
	default:
		return exitFailure
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	return runWith(ctx, stdin, stdout, nil)
}

// runWith is run with an injectable dialer. A nil dialer is chosen from
// target.transport.
func runWith(ctx context.Context, stdin io.Reader, stdout io.Writer, dialer kdrive.Dialer) error {
	log := logging.Default()
	log.Info("starting knxmonitor", "version", version, "commit", commit, "build_date", date)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"target", accessport.Target{Address: cfg.Target.Address, Port: cfg.Target.Port}.String(),
		"transport", cfg.Target.Transport,
	)

	monitorCfg, err := buildMonitorConfig(cfg)
	if err != nil {
		return err
	}

	sinks, closeSinks, err := openSinks(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSinks()

	var handler accessport.Handler = accessport.NewConsoleHandler(stdout)
	if len(sinks) > 0 {
		datapoints, dpErr := cfg.GetDatapoints()
		if dpErr != nil {
			return fmt.Errorf("loading datapoints: %w", dpErr)
		}
		dispatcher := forward.NewDispatcher(forward.Options{
			QueueSize:  cfg.Forward.QueueSize,
			Datapoints: datapoints,
		}, log.With("component", "forward"), sinks...)
		defer func() {
			dispatcher.Close()
			log.Info("forwarding stopped", "stats", fmt.Sprintf("%+v", dispatcher.Stats()))
		}()
		handler = accessport.Multi{handler, dispatcher}
	}

	if dialer == nil {
		dialer = newDialer(cfg, log)
	}
	layer := kdrive.NewLayer(kdrive.Config{
		Dialer:      dialer,
		OpenTimeout: cfg.GetConnectTimeout(),
		Logger:      log.Logger,
	})

	reader := console.NewLineReader(stdin)
	defer reader.Close() //nolint:errcheck // terminal restore is best-effort
	log.Debug("console ready", "interactive", reader.IsInteractive())

	monitor := accessport.NewMonitor(layer, handler, reader, monitorCfg, log)
	err = monitor.Run(ctx)

	stats := monitor.Stats()
	log.Info("bus monitor finished",
		"telegrams", stats.Telegrams,
		"events", stats.Events,
		"errors", stats.Errors,
		"handler_failures", stats.HandlerFailures,
	)
	return err
}

// buildMonitorConfig converts the loaded configuration into a MonitorConfig.
func buildMonitorConfig(cfg *config.Config) (accessport.MonitorConfig, error) {
	level, ok := kdrive.ParseLogLevel(cfg.LogLevel)
	if !ok {
		return accessport.MonitorConfig{}, fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}

	mc := accessport.MonitorConfig{
		Target:      accessport.Target{Address: cfg.Target.Address, Port: cfg.Target.Port},
		PacketTrace: cfg.PacketTrace,
		LogLevel:    level,
	}

	if cfg.StartupWrite.Enabled {
		ga, err := cfg.GetGroupAddress()
		if err != nil {
			return accessport.MonitorConfig{}, fmt.Errorf("group address: %w", err)
		}
		payload, err := cfg.StartupPayload()
		if err != nil {
			return accessport.MonitorConfig{}, fmt.Errorf("startup payload: %w", err)
		}
		mc.StartupWrite = &accessport.GroupWrite{Address: ga, Payload: payload}
	}
	return mc, nil
}

// newDialer selects the transport for the access-port layer.
func newDialer(cfg *config.Config, log *logging.Logger) kdrive.Dialer {
	if cfg.Target.Transport == config.TransportKNXD {
		return kdrive.KNXDDialer{
			URL:    cfg.Target.KNXDURL,
			Logger: log.With("component", "knxd"),
		}
	}
	return kdrive.TunnelDialer{}
}

// healthChecker is implemented by every sink backend.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// namedCheck pairs a backend with the name used in errors.
type namedCheck struct {
	name  string
	check healthChecker
}

// healthCheck verifies every connected backend before monitoring starts.
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, checks []namedCheck) error {
	for _, c := range checks {
		if err := c.check.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}

// openSinks connects every enabled forwarding sink and health-checks the
// backends. The returned closer tears them down in reverse order and is
// always non-nil.
func openSinks(ctx context.Context, cfg *config.Config, log *logging.Logger) ([]forward.Sink, func(), error) {
	var sinks []forward.Sink
	var closers []func()
	var checks []namedCheck

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.MQTT.Enabled {
		client, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttLog := log.With("component", "mqtt")
		client.SetLogger(mqttLog)
		client.SetOnConnect(func() {
			mqttLog.Info("MQTT reconnected")
		})
		client.SetOnDisconnect(func(err error) {
			mqttLog.Warn("MQTT disconnected", "error", err)
		})
		closers = append(closers, func() {
			log.Info("disconnecting from MQTT")
			if closeErr := client.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		})
		log.Info("MQTT connected", "broker", mqtt.BrokerURL(cfg.MQTT), "client_id", client.ClientID())
		sinks = append(sinks, forward.NewMQTTSink(client, client.Topics(), byte(cfg.MQTT.QoS))) //nolint:gosec // QoS validated by config
		checks = append(checks, namedCheck{name: "mqtt", check: client})
	}

	if cfg.Database.Enabled {
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("opening database: %w", err)
		}
		closers = append(closers, func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		})
		if err := db.Migrate(ctx); err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("running migrations: %w", err)
		}

		recorder, err := forward.NewRecorder(ctx, db.DB)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, func() {
			gas, _ := recorder.GroupAddressCount(context.Background())  //nolint:errcheck // summary only
			devices, _ := recorder.DeviceCount(context.Background())    //nolint:errcheck // summary only
			log.Info("address recorder stopped", "group_addresses", gas, "devices", devices)
			recorder.Close() //nolint:errcheck // statements close with the database
		})
		log.Info("address recorder ready", "path", db.Path())
		sinks = append(sinks, recorder)
		checks = append(checks, namedCheck{name: "database", check: db})
	}

	if cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		client.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		closers = append(closers, func() {
			log.Info("closing InfluxDB connection")
			if closeErr := client.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		sinks = append(sinks, forward.NewMetricsSink(client))
		checks = append(checks, namedCheck{name: "influxdb", check: client})
	}

	if err := healthCheck(ctx, checks); err != nil {
		closeAll()
		return nil, func() {}, fmt.Errorf("health check failed: %w", err)
	}
	if len(checks) > 0 {
		log.Info("sink health checks passed", "sinks", len(checks))
	}

	return sinks, closeAll, nil
}

// getConfigPath returns KNXMONITOR_CONFIG, else the default path when that
// file exists, else "" (defaults plus environment).
func getConfigPath() string {
	if path := os.Getenv("KNXMONITOR_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}
