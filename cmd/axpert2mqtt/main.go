package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/volterm/axpert2mqtt/internal/config"
	"github.com/volterm/axpert2mqtt/internal/monitor"
	"github.com/volterm/axpert2mqtt/internal/mqtt"
	"github.com/volterm/axpert2mqtt/internal/server"
	"github.com/volterm/axpert2mqtt/pkg/axpert"

	"github.com/carlmjohnson/versioninfo"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	flagDevice    = pflag.StringP("device", "d", "", "inverter device node (hidraw or serial)")
	flagTransport = pflag.String("transport", "", "transport type: hid or serial")
	flagQuery     = pflag.StringSliceP("query", "q", nil, "mnemonic(s) to execute once and exit")
	flagUnits     = pflag.BoolP("units", "u", false, "attach units to decoded values")
	flagFormat    = pflag.StringP("format", "f", "table", "one-shot output format: raw, json or table")
	flagRawStatus = pflag.Bool("raw-status", false, "keep warning bitfields as raw digit strings")
	flagList      = pflag.Bool("list", false, "list known mnemonics and exit")
	flagMonitor   = pflag.Bool("monitor", false, "run the MQTT bridge daemon")
	flagLogLevel  = pflag.StringP("log-level", "L", "", "log level: debug, info, warn, error")
	flagVersion   = pflag.BoolP("version", "V", false, "print version and exit")
)

func main() {
	pflag.Parse()

	if *flagVersion {
		fmt.Println(versioninfo.Short())
		return
	}
	if *flagList {
		printMnemonicList()
		return
	}

	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: slogLevel(cfg.LogLevel),
	})))

	if *flagMonitor {
		runMonitor(cfg)
		return
	}
	if len(*flagQuery) == 0 {
		pflag.Usage()
		os.Exit(2)
	}
	runOneShot(cfg)
}

// runOneShot opens the transport, executes each requested mnemonic and
// prints the result. A NAK or any error exits non-zero.
func runOneShot(cfg *config.Config) {
	client, err := openClient(cfg, zap.NewNop())
	if err != nil {
		slog.Error("open device", "device", cfg.Device, "error", err)
		os.Exit(1)
	}
	defer client.Close()

	var opts []axpert.ExecOption
	if *flagUnits {
		opts = append(opts, axpert.WithUnits())
	}
	if *flagRawStatus {
		opts = append(opts, axpert.WithRawBitfield())
	}

	failed := false
	for _, mnemonic := range *flagQuery {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.TimeoutSeconds)*time.Second)
		res, err := client.Execute(ctx, mnemonic, opts...)
		cancel()
		if err != nil {
			slog.Error("exchange failed", "mnemonic", mnemonic, "error", err)
			failed = true
			continue
		}
		if !printResult(res) {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func printResult(res *axpert.Result) bool {
	if res.Kind == axpert.KindCommand {
		if res.Command.Acknowledged {
			fmt.Printf("%s: ACK\n", res.Mnemonic)
			return true
		}
		fmt.Printf("%s: NAK\n", res.Mnemonic)
		return false
	}

	switch *flagFormat {
	case "raw":
		fmt.Println(res.Query.Raw)
	case "json":
		out, err := json.Marshal(res.Query)
		if err != nil {
			slog.Error("marshal result", "error", err)
			return false
		}
		fmt.Println(string(out))
	default:
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, f := range res.Query.Fields {
			fmt.Fprintf(w, "%s\t%s\n", f.Key, f.Value.String())
		}
		w.Flush()
	}
	return true
}

func printMnemonicList() {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MNEMONIC\tKIND\tDESCRIPTION")
	for _, info := range axpert.ListKnownMnemonics() {
		pattern := info.Pattern
		kind := "query"
		if info.Kind == axpert.KindCommand {
			kind = "command"
			pattern += "<param>"
		}
		if info.Unverified {
			kind += " (unverified)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", pattern, kind, info.Desc)
	}
	w.Flush()
}

// runMonitor starts the poll scheduler, the MQTT bridge and the HTTP API,
// then blocks until SIGINT/SIGTERM.
func runMonitor(cfg *config.Config) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	client, err := openClient(cfg, logger)
	if err != nil {
		logger.Fatal("open device", zap.String("device", cfg.Device), zap.Error(err))
	}
	defer client.Close()

	mqttClient := mqtt.CreateMQTTClient(cfg, mqtt.OptsFromConfig(cfg), nil, func(_ pahomqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	connectErr := make(chan error, 1)
	mqttClient.Connect(func(err error) { connectErr <- err }, 10*time.Second)
	if err := <-connectErr; err != nil {
		logger.Fatal("MQTT connect", zap.Error(err))
	}
	defer mqttClient.Disconnect(time.Second)

	ctx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()

	mon := monitor.NewMonitor(*cfg, client, mqttClient, logger)
	if err := mon.Start(ctx); err != nil {
		logger.Fatal("start monitor", zap.Error(err))
	}
	defer mon.Stop()

	mqttClient.SubscribeToCommandTopics(mon.CommandHandler(ctx, mqttClient), func(err error) {
		if err != nil {
			logger.Error("subscribe to command topics", zap.Error(err))
		}
	}, 10*time.Second)

	apiServer := server.NewServer(*cfg, client, mon)
	done := make(chan bool, 1)
	go gracefulShutdown(apiServer, done)

	err = apiServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.Fatal("http server", zap.Error(err))
	}

	<-done
	log.Println("Graceful shutdown complete.")
}

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func openClient(cfg *config.Config, logger *zap.Logger) (*axpert.Client, error) {
	var transport axpert.Transport
	var err error
	switch cfg.Transport {
	case config.TransportSerial:
		transport, err = axpert.OpenSerial(axpert.SerialConfig{
			Device:   cfg.Device,
			BaudRate: cfg.Serial.BaudRate,
		})
	default:
		transport, err = axpert.OpenHID(cfg.Device)
	}
	if err != nil {
		return nil, err
	}
	return axpert.NewClient(transport,
		axpert.WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second),
		axpert.WithLogger(logger)), nil
}

func initConfig() (*config.Config, error) {

	// alias PORT => AXPERT_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("AXPERT_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("axpert")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// command line overrides
	if *flagDevice != "" {
		cfg.Device = *flagDevice
	}
	if *flagTransport != "" {
		cfg.Transport = *flagTransport
	}

	// parse log level
	level := viper.GetString("log_level")
	if *flagLogLevel != "" {
		level = *flagLogLevel
	}
	switch level {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	safePrintConfig(cfg)
	return &cfg, nil
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("transport", config.TransportHID)
	viper.SetDefault("timeout_seconds", 10)
	viper.SetDefault("serial.baud_rate", 2400)
	viper.SetDefault("monitor.poll_interval_millis", 30000)
	viper.SetDefault("monitor.queries", []string{"QPIGS", "QMOD", "QPIWS"})
	viper.SetDefault("monitor.add_units", false)
	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.base_topic", "axpert")
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}

func slogLevel(l zapcore.Level) slog.Level {
	switch {
	case l <= zap.DebugLevel:
		return slog.LevelDebug
	case l == zap.InfoLevel:
		return slog.LevelInfo
	case l == zap.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
