package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tinygo.org/x/bluetooth"

	"djistream/internal/config"
	"djistream/internal/discovery"
	"djistream/internal/djidevice"
	"djistream/internal/djiproto"
	"djistream/internal/logger"
	"djistream/internal/statushub"
	"djistream/internal/transport"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	deviceProfile := flag.String("device", "", "Named device profile to stream (see config.yaml)")
	scanOnly := flag.Bool("scan", false, "Scan for DJI devices and print what was found, then exit")
	scanTimeout := flag.Duration("scan-timeout", 15*time.Second, "How long to scan for devices")
	flag.Parse()

	cfgManager := config.NewManager(*configPath)
	if err := cfgManager.Load(); err != nil {
		fmt.Printf("[WARN] failed to load config: %v, creating a default one\n", err)
		if mkErr := os.MkdirAll(filepath.Dir(*configPath), 0755); mkErr != nil {
			fmt.Printf("failed to create config directory: %v\n", mkErr)
			os.Exit(1)
		}
		if saveErr := cfgManager.Update(*config.DefaultConfig()); saveErr != nil {
			fmt.Printf("failed to create default config: %v\n", saveErr)
			os.Exit(1)
		}
	}
	cfg := cfgManager.Get()

	if err := logger.Init(cfg.Log.FilePath, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups, cfg.Log.Debug); err != nil {
		fmt.Printf("[WARN] failed to initialize file logging: %v (continuing with stdout only)\n", err)
		if err := logger.Init("", 0, 0, cfg.Log.Debug); err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			os.Exit(1)
		}
	}
	defer logger.Get().Close()

	logger.Printf("Starting djistream")

	scanner := discovery.NewScanner()

	if *scanOnly {
		runScan(scanner, *scanTimeout)
		return
	}

	if *deviceProfile == "" {
		fmt.Println("a -device profile name is required unless -scan is given")
		os.Exit(1)
	}
	profile, ok := cfgManager.DeviceProfile(*deviceProfile)
	if !ok {
		fmt.Printf("no device profile named %q in %s\n", *deviceProfile, *configPath)
		os.Exit(1)
	}

	hub := statushub.NewHub()
	go hub.Run()

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	server := &http.Server{
		Addr:         cfg.StatusHub.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("status hub server failed: %v", err)
		}
	}()
	logger.Printf("Status hub listening at %s", cfg.StatusHub.ListenAddr)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runDevice(rootCtx, scanner, profile, cfg.Flow, hub); err != nil {
		logger.Error("device run failed: %v", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("status hub shutdown error: %v", err)
	}
	logger.Println("djistream stopped")
}

func runScan(scanner *discovery.Scanner, timeout time.Duration) {
	fmt.Printf("scanning for %s...\n", timeout)
	ctx, cancel := context.WithTimeout(context.Background(), timeout+time.Second)
	defer cancel()

	if err := scanner.Start(ctx, discovery.ScanOptions{Timeout: timeout}); err != nil {
		fmt.Printf("scan failed: %v\n", err)
		os.Exit(1)
	}

	devices := scanner.Devices()
	if len(devices) == 0 {
		fmt.Println("no DJI devices found")
		return
	}
	for _, d := range devices {
		fmt.Printf("%s  %-16s  %s  rssi=%d\n", d.Address, d.Variant, d.Name, d.RSSI)
	}
}

func runDevice(ctx context.Context, scanner *discovery.Scanner, profile config.DeviceProfile, flowCfg config.FlowConfig, hub *statushub.Hub) error {
	logger.Printf("scanning for device matching address filter %q...", profile.AddressFilter)
	if err := scanner.Start(ctx, discovery.ScanOptions{AddressFilter: profile.AddressFilter, Timeout: 20 * time.Second}); err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	devices := scanner.Devices()
	if len(devices) == 0 {
		return fmt.Errorf("no matching device found")
	}
	found := devices[0]
	logger.Printf("using device %s (%s)", found.Address, found.Variant)

	duplex := transport.NewBLEDuplex(bluetooth.DefaultAdapter, found.Address)
	session := djidevice.NewSession(found.Variant)
	session.SetPairingPIN(flowCfg.PairingPIN)

	go func() {
		for line := range session.Log() {
			logger.Printf("[device] %s", line)
			hub.Broadcast("log", line)
		}
	}()
	go func() {
		for err := range session.Errors() {
			logger.Error("[device] %v", err)
			hub.Broadcast("error", err.Error())
		}
	}()
	session.SubscribeStreamerEvents(func(e djidevice.StreamerEvent) {
		if e.Kind == djidevice.BatteryChanged {
			hub.Broadcast("battery", e.Battery)
		}
	})

	connector := &bindingConnector{duplex: duplex, session: session}

	resolution, fps, stabilization := parseStreamSettings(profile)
	flow := djidevice.NewFlow(session, connector, djidevice.FlowOptions{
		SSID: profile.WiFiSSID,
		PSK:  profile.WiFiPSK,
		Stream: djidevice.StreamParams{
			Resolution:  resolution,
			BitrateKbps: uint16(profile.BitrateKbps),
			FPS:         fps,
			RTMPURL:     profile.RTMPURL,
		},
		StepTimeout: flowCfg.StepTimeout(),
	})

	flow.Start(ctx)

	select {
	case res := <-flow.Done():
		if !res.Success {
			return fmt.Errorf("flow: %w", res.Err)
		}
		logger.Printf("live stream started for %s", found.Address)
		session.SetImageStabilization(stabilization)
	case <-ctx.Done():
		flow.Cancel()
		<-flow.Done()
		return ctx.Err()
	}

	<-ctx.Done()
	logger.Println("shutdown signal received, stopping stream")
	session.StopLiveStream()
	session.Close()
	return nil
}

// bindingConnector adapts a BLEDuplex into a djidevice.Connector: it
// performs the BLE connect/characteristic-discovery dance and then binds
// the resulting duplex to the session.
type bindingConnector struct {
	duplex  *transport.BLEDuplex
	session *djidevice.Session
}

func (c *bindingConnector) Connect(ctx context.Context) error {
	if err := c.duplex.Connect(ctx); err != nil {
		return err
	}
	c.session.Bind(c.duplex, c.duplex)
	return nil
}

func parseStreamSettings(p config.DeviceProfile) (djiproto.Resolution, djiproto.FPS, djiproto.Stabilization) {
	resolution := djiproto.Resolution1080p
	switch p.Resolution {
	case "480p":
		resolution = djiproto.Resolution480p
	case "720p":
		resolution = djiproto.Resolution720p
	}

	fps := djiproto.FPS30
	if p.FPS == 25 {
		fps = djiproto.FPS25
	}

	stabilization := djiproto.StabilizationRockSteady
	switch p.Stabilization {
	case "off":
		stabilization = djiproto.StabilizationOff
	case "horizon_steady":
		stabilization = djiproto.StabilizationHorizonSteady
	case "rock_steady_plus":
		stabilization = djiproto.StabilizationRockSteadyPlus
	case "horizon_balancing":
		stabilization = djiproto.StabilizationHorizonBalancing
	}

	return resolution, fps, stabilization
}
