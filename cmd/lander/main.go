// Command lander runs precision-landing guidance on the companion computer.
// It reads marker candidates from a detector over UDP, exchanges JSON lines
// with the flight controller bridge over serial, and takes start/stop
// commands over MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/banshee-data/precision.land/internal/cmdbus"
	"github.com/banshee-data/precision.land/internal/config"
	"github.com/banshee-data/precision.land/internal/flightlink"
	"github.com/banshee-data/precision.land/internal/flightlog"
	"github.com/banshee-data/precision.land/internal/guidance"
	"github.com/banshee-data/precision.land/internal/serialmux"
	"github.com/banshee-data/precision.land/internal/timeutil"
	"github.com/banshee-data/precision.land/internal/version"
	"github.com/banshee-data/precision.land/internal/vision"
)

var (
	devMode     = flag.Bool("dev", false, "Use an in-memory serial port instead of the flight controller")
	showVersion = flag.Bool("version", false, "Print version and exit")
	envFile     = flag.String("env", ".env", "Optional dotenv file with MQTT credentials")
	configPath  = flag.String("config", "", "Tuning config JSON (defaults compiled in when empty)")

	port     = flag.String("port", "/dev/ttyAMA0", "Serial port of the flight controller bridge")
	baudRate = flag.Int("baud", serialmux.DefaultBaudRate, "Serial baud rate")
	dataBits = flag.Int("data-bits", 8, "Serial data bits")
	stopBits = flag.Int("stop-bits", 1, "Serial stop bits")
	parity   = flag.String("parity", "N", "Serial parity (N, E or O)")

	visionListen = flag.String("vision-listen", "127.0.0.1:5600", "UDP address for detector frames")

	mqttBroker       = flag.String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883 (disabled when empty)")
	mqttClientID     = flag.String("mqtt-client-id", cmdbus.DefaultClientID, "MQTT client ID")
	mqttCommandTopic = flag.String("mqtt-command-topic", cmdbus.DefaultCommandTopic, "Topic carrying start/stop commands")
	mqttStatusTopic  = flag.String("mqtt-status-topic", cmdbus.DefaultStatusTopic, "Topic for status replies")

	flightLogPath = flag.String("flight-log", "flightlog.db", "SQLite flight log (disabled when empty)")
)

func portOptions() serialmux.PortOptions {
	return serialmux.PortOptions{
		BaudRate: *baudRate,
		DataBits: *dataBits,
		StopBits: *stopBits,
		Parity:   *parity,
	}
}

func busOptions() cmdbus.Options {
	return cmdbus.Options{
		Broker:       *mqttBroker,
		ClientID:     *mqttClientID,
		Username:     os.Getenv("MQTT_USERNAME"),
		Password:     os.Getenv("MQTT_PASSWORD"),
		CommandTopic: *mqttCommandTopic,
		StatusTopic:  *mqttStatusTopic,
	}
}

func loadConfig(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.EmptyTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

// statusSink logs every status line and forwards it to publish when set.
func statusSink(publish func(string)) func(string) {
	return func(msg string) {
		log.Printf("status: %s", msg)
		if publish != nil {
			publish(msg)
		}
	}
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("lander"))
		return
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("failed to load %s: %v", *envFile, err)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load tuning config: %v", err)
	}

	var mux serialmux.Mux
	if *devMode {
		mux = serialmux.NewSerialMux(serialmux.NewTestableSerialPort())
		log.Printf("dev mode: using in-memory serial port")
	} else {
		opts, err := portOptions().Normalise()
		if err != nil {
			log.Fatalf("invalid serial options: %v", err)
		}
		serialMux, err := serialmux.OpenPort(*port, opts)
		if err != nil {
			log.Fatalf("failed to open flight controller link: %v", err)
		}
		log.Printf("opened %s (%s)", *port, opts)
		mux = serialMux
	}
	defer mux.Close()
	link := flightlink.New(mux)

	detector, err := vision.ListenUDP(*visionListen)
	if err != nil {
		log.Fatalf("failed to listen for detector frames: %v", err)
	}
	defer detector.Close()
	log.Printf("listening for detector frames on %s", detector.LocalAddr())

	clock := timeutil.RealClock{}
	tracker, err := vision.NewTrackerFromTuning(cfg, clock)
	if err != nil {
		log.Fatalf("failed to build tracker: %v", err)
	}

	var recorder guidance.Recorder
	var flightRecorder *flightlog.Recorder
	if *flightLogPath != "" {
		store, err := flightlog.Open(*flightLogPath)
		if err != nil {
			log.Fatalf("failed to open flight log: %v", err)
		}
		defer store.Close()
		flightRecorder = flightlog.NewRecorderFromTuning(store, cfg, clock)
		flightRecorder.Start()
		recorder = flightRecorder
	}

	var bus *cmdbus.Bus
	var publish func(string)
	if *mqttBroker != "" {
		bus, err = cmdbus.Dial(busOptions())
		if err != nil {
			log.Fatalf("failed to connect to MQTT: %v", err)
		}
		defer bus.Close()
		publish = bus.Status
	}

	samples := &guidance.Latest[vision.Sample]{}
	telemetry := &guidance.Latest[guidance.TelemetrySnapshot]{}

	orch, err := guidance.New(cfg, guidance.Deps{
		Commander: link,
		Samples:   samples,
		Telemetry: telemetry,
		Clock:     clock,
		Status:    statusSink(publish),
		Recorder:  recorder,
	})
	if err != nil {
		log.Fatalf("failed to build guidance: %v", err)
	}

	if bus != nil {
		if err := bus.Handle(bus.Options().CommandTopic, bus.CommandHandler(orch.Submit)); err != nil {
			log.Fatalf("failed to subscribe to commands: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	// serial IO
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	producers := []*guidance.Producer{
		guidance.NewVisionProducer(detector, tracker, samples),
		guidance.NewTelemetryProducer(link, cfg.GetLandedAltitude(), clock, telemetry),
	}
	for _, p := range producers {
		if err := p.Start(ctx); err != nil {
			log.Fatalf("failed to start %s producer: %v", p.Name(), err)
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("guidance loop stopped: %v", err)
		}
		log.Print("guidance routine terminated")
	}()

	wg.Wait()
	for _, p := range producers {
		p.Stop()
	}
	if flightRecorder != nil {
		flightRecorder.Stop()
		if n := flightRecorder.Dropped(); n > 0 {
			log.Printf("flight log dropped %d events", n)
		}
	}
	if bus != nil {
		bus.Close()
		if n := bus.Dropped(); n > 0 {
			log.Printf("status bus dropped %d lines", n)
		}
	}
	log.Printf("Graceful shutdown complete")
}
