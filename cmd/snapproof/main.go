package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"snapproof/internal/config"
	"snapproof/internal/debug"
	"snapproof/internal/hw/camera"
	"snapproof/internal/hw/gpio"
	"snapproof/internal/hw/indicator"
	"snapproof/internal/hw/session"
	"snapproof/internal/logic/frame"
	"snapproof/internal/logic/sequence"
	"snapproof/internal/verify"
	"snapproof/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	startPos := flag.String("start", "", "override starting position: selfie or subject")
	habitID := flag.String("habit", "", "habit id attached to the submitted images")
	outDir := flag.String("out", "", "override output directory for CLI runs")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Validate CLI overrides (empty values mean "use config default")
	if err := validateCLIOverrides(*startPos, *outDir); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, *startPos, *outDir)

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	// Initialize GPIO driver (mock unless the rig lamps need real pins)
	debug.Value("Mock hardware", cfg.Defaults.MockHardware)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockHardware)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	// Select camera backend
	debug.Step(2, "Initializing camera backend")
	backend := newBackendFromConfig(cfg)
	debug.Value("Selfie device", cfg.Cameras.Selfie.Device)
	debug.Value("Subject device", cfg.Cameras.Subject.Device)

	// Status lamps (optional)
	var lamps *indicator.Indicator
	if cfg.Indicator.Enabled {
		debug.Step(3, "Initializing status lamps")
		lamps = indicator.New(gpioDriver, indicator.Config{
			ReadyPin: cfg.Indicator.ReadyPin,
			BusyPin:  cfg.Indicator.BusyPin,
		})
		defer lamps.Off()
	}

	// newSession builds a fresh sequencer over a fresh hardware session
	// manager. Each verification session gets its own manager so the
	// acquire/release lifecycle stays per-session.
	newSession := func() (*sequence.Sequencer, func(), error) {
		mgr := session.NewManager(backend, session.AllowAll{})
		proc := frame.NewProcessor(cfg.Processor.MaxDimension, cfg.Processor.JPEGQuality, cfg.Processor.Workers)
		seq := sequence.New(mgr, proc, sequence.Config{
			CountdownTicks: cfg.Capture.CountdownTicks,
			TickInterval:   cfg.TickInterval(),
			CaptureTimeout: cfg.CaptureTimeout(),
			Flash:          cfg.FlashMode(),
		})
		lampUnsub := func() {}
		if lamps != nil {
			updates, unsub := seq.Updates()
			lampUnsub = unsub
			go lamps.Follow(updates)
		}
		cleanup := func() {
			seq.Close()
			lampUnsub()
			mgr.Close()
		}
		return seq, cleanup, nil
	}

	uploader := &verify.DirSink{Dir: cfg.Defaults.OutputDir}

	if port := webPort.port(); port > 0 {
		webAddr := fmt.Sprintf(":%d", port)
		broadcaster := web.NewStateBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		formDefaults := web.FormConfig{
			StartPosition:  cfg.Capture.StartPosition,
			CountdownTicks: cfg.Capture.CountdownTicks,
			Flash:          cfg.Capture.Flash,
		}
		srv := web.NewServer(webAddr, broadcaster, newSession, uploader, formDefaults)
		if err := srv.Run(ctx); err != nil {
			log.Fatalf("web server: %v", err)
		}
		return
	}

	// CLI mode: run one dual-shot session end to end.
	if err := runSession(ctx, cfg, newSession, uploader, *habitID); err != nil {
		log.Fatalf("verification session failed: %v", err)
	}
}

// runSession drives one complete dual-shot session from the command
// line. There is no shutter button in this mode, so the manual shot is
// triggered as soon as the session is armed.
func runSession(ctx context.Context, cfg *config.Config, newSession web.NewSessionFunc, uploader verify.Uploader, habitID string) error {
	seq, cleanup, err := newSession()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer cleanup()

	updates, unsub := seq.Updates()
	defer unsub()

	// Cancel the session if the process is interrupted mid-protocol.
	go func() {
		<-ctx.Done()
		seq.Cancel()
	}()

	// Auto-trigger the manual shot once the device is armed.
	go func() {
		for st := range updates {
			if st.Phase == sequence.PhaseAwaitingManualCapture && st.Armed {
				seq.Trigger()
				return
			}
			if st.Phase.Terminal() {
				return
			}
		}
	}()

	debug.Section("Starting Dual-Shot Session")
	seq.Start(cfg.StartPosition())

	res, err := seq.Wait(ctx)
	if err != nil {
		return err
	}

	debug.Section("Session Complete")
	if err := uploader.Submit(ctx, seq.ID(), habitID, res.Selfie, res.Subject); err != nil {
		return fmt.Errorf("submit images: %w", err)
	}
	return nil
}

// validateCLIOverrides checks that non-empty CLI overrides are valid.
// Empty values are ignored (they mean "use config default").
func validateCLIOverrides(startPos, outDir string) error {
	if startPos != "" {
		if _, err := camera.ParsePosition(startPos); err != nil {
			return err
		}
	}
	if outDir != "" {
		if filepath.Clean(outDir) == "." && outDir != "." {
			return fmt.Errorf("output dir must be a usable path, got %q", outDir)
		}
	}
	return nil
}

// applyOverrides mutates cfg with CLI overrides. Only non-empty values
// are applied.
func applyOverrides(cfg *config.Config, startPos, outDir string) {
	if startPos != "" {
		cfg.Capture.StartPosition = startPos
	}
	if outDir != "" {
		cfg.Defaults.OutputDir = outDir
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }

// newBackendFromConfig selects a camera backend based on configuration.
func newBackendFromConfig(cfg *config.Config) camera.Backend {
	if cfg.Defaults.MockHardware {
		return &camera.MockBackend{}
	}
	return &camera.GstBackend{
		Devices:        cfg.Devices(),
		CaptureTimeout: cfg.CaptureTimeout(),
	}
}
