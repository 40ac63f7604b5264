// Command buttond turns GPIO button presses into gestures and publishes them
// to MQTT.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sweeney/buttond/internal/action"
	"github.com/sweeney/buttond/internal/button"
	"github.com/sweeney/buttond/internal/config"
	"github.com/sweeney/buttond/internal/gpio"
	"github.com/sweeney/buttond/internal/mqtt"
	"github.com/sweeney/buttond/internal/status"
	"github.com/sweeney/buttond/internal/web"
)

// statusRefresh is how often the tracker's MQTT link state is refreshed.
const statusRefresh = time.Second

type options struct {
	configPath string
	verbose    bool
	broker     string
	heartbeat  time.Duration
	httpAddr   string
	chip       string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "buttond",
		Short:         "Publish GPIO button gestures to MQTT",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
			if opts.verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML button layout (empty uses the built-in layout)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log every edge and gesture")
	root.PersistentFlags().StringVar(&opts.chip, "chip", "", "GPIO chip (overrides the layout)")

	run := &cobra.Command{
		Use:   "run",
		Short: "Watch the buttons and publish gestures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts)
		},
	}
	run.Flags().StringVar(&opts.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	run.Flags().DurationVar(&opts.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	run.Flags().StringVar(&opts.httpAddr, "http", ":80", "HTTP status address (empty to disable)")

	root.AddCommand(run, newPrintStateCmd(opts), newValidateCmd(opts))
	return root
}

// loadConfig reads the layout and applies command-line overrides.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.chip != "" {
		cfg.Chip = opts.chip
	}
	return cfg, nil
}

func runDaemon(opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	specs, err := cfg.ButtonSpecs()
	if err != nil {
		return err
	}

	// Initialize GPIO
	var src gpio.Source
	src, err = gpio.NewLineSource(cfg.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer src.Close()

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(opts.broker, mqtt.ClientID())
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		Chip:        cfg.Chip,
		QueueSize:   cfg.QueueSize,
		Screens:     cfg.Screens,
		HeartbeatMs: opts.heartbeat.Milliseconds(),
		Broker:      opts.broker,
		HTTPPort:    opts.httpAddr,
		ConfigPath:  opts.configPath,
	}, specs)
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	dispOpts := action.Options{
		Publisher: publisher,
		Tracker:   tracker,
		Logger:    log.WithField("component", "action"),
	}

	// Start HTTP status server
	if opts.httpAddr != "" {
		srv := web.New(opts.httpAddr, tracker)
		dispOpts.Live = srv
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", opts.httpAddr)
	}

	dispatcher := action.New(dispOpts)
	engine := button.New(button.Options{
		QueueSize: cfg.QueueSize,
		Clock:     gpio.Now,
		Logger:    log.WithField("component", "button"),
		OnMask:    tracker.SetMask,
	})
	if err := cfg.Register(engine, dispatcher.Callback); err != nil {
		return err
	}
	tracker.SetDropCounters(engine.Dropped, dispatcher.Dropped)

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	if err := engine.Arm(src); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engineErr := make(chan error, 1)
	go func() { engineErr <- engine.Run(ctx) }()
	dispatched := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(dispatched)
	}()

	log.Printf("started: chip=%s buttons=%d combos=%d broker=%s heartbeat=%v session=%s",
		cfg.Chip, len(cfg.Buttons), len(cfg.Combos), opts.broker, opts.heartbeat, dispatcher.Session())

	var heartbeat <-chan time.Time
	if opts.heartbeat > 0 {
		hb := time.NewTicker(opts.heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}
	refresh := time.NewTicker(statusRefresh)
	defer refresh.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	err = runLoop(publisher, publisher, tracker, time.Now, refresh.C, heartbeat, sigCh, engineErr)
	cancel()
	<-dispatched
	return err
}

// runLoop handles lifecycle events while the engine and dispatcher run on
// their own goroutines. It returns on a shutdown signal or engine failure.
func runLoop(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, refresh, heartbeat <-chan time.Time, sig <-chan os.Signal, engineErr <-chan error) error {
	shutdown := func(reason string) {
		event := mqtt.SystemEvent{
			Timestamp: now(),
			Event:     "SHUTDOWN",
			Reason:    reason,
			Retained:  true,
		}
		if tracker != nil {
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
			event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", reason)
		}
		if err := publisher.PublishSystem(event); err != nil {
			log.Printf("failed to publish shutdown event: %v", err)
		} else {
			log.Printf("published shutdown event")
		}
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			shutdown(signalName)
			return nil

		case err := <-engineErr:
			log.Errorf("gesture engine stopped: %v", err)
			shutdown("ENGINE_ERROR")
			return fmt.Errorf("gesture engine: %w", err)

		case <-refresh:
			if tracker != nil && mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}

		case <-heartbeat:
			hbEvent := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "HEARTBEAT",
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				snap := tracker.Snapshot()
				log.Printf("heartbeat: uptime=%v press=%d held=%d release=%d dropped_edges=%d dropped_gestures=%d",
					snap.Uptime().Truncate(time.Second), snap.Counts.Press, snap.Counts.Held, snap.Counts.Release,
					snap.DroppedEdges, snap.DroppedGestures)
				hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
