package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/cjeanneret/SnapGo/internal/config"
	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/cjeanneret/SnapGo/internal/hw/gpio"
	"github.com/cjeanneret/SnapGo/internal/hw/indicator"
	"github.com/cjeanneret/SnapGo/internal/logic/capture"
	"github.com/cjeanneret/SnapGo/internal/logic/placeholder"
	"github.com/cjeanneret/SnapGo/internal/logic/schedule"
	"github.com/cjeanneret/SnapGo/internal/logic/snapshot"
	"github.com/cjeanneret/SnapGo/internal/metrics"
	"github.com/cjeanneret/SnapGo/internal/web"
)

func main() {
	// CLI flags
	cfgPath := flag.String("config", "", "optional YAML config file; environment variables take precedence")
	cycles := &cyclesFlag{}
	flag.Var(cycles, "cycles", "stop after N cycles (0 = run forever); overrides MAX_CYCLES")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	cycles.apply(cfg)

	// Initialize debug system
	debug.Init(cfg.DebugLevel())
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.DebugLevel())
	debug.PrintStruct("Feed", cfg.Feed)
	debug.Value("Output folder", cfg.Output.Folder)
	debug.Value("Sleep", cfg.Sleep())
	debug.Value("Capture timeout", cfg.CaptureTimeout())
	debug.Value("Max cycles", cfg.Schedule.MaxCycles)

	// Initialize GPIO driver and indicator LED (only when a pin is configured)
	debug.Step(1, "Initializing indicator")
	led, gpioDriver, err := newIndicatorFromConfig(cfg, gpio.NewDriver)
	if err != nil {
		log.Fatalf("init indicator failed: %v", err)
	}
	if gpioDriver != nil {
		defer func() {
			if err := gpioDriver.Close(); err != nil {
				log.Printf("closing GPIO driver failed: %v", err)
			}
		}()
	}

	// Initialize frame source
	debug.Step(2, "Initializing frame source")
	writer := snapshot.NewWriter(cfg.Output.Folder, nil)
	source, err := newSourceFromConfig(cfg, writer)
	if err != nil {
		log.Fatalf("init source failed: %v", err)
	}
	debug.Value("Camera type", cfg.Feed.CameraType)

	// Initialize reporters
	debug.Step(3, "Initializing metrics and reporters")
	m, err := metrics.New(cfg.FeedLabel())
	if err != nil {
		log.Fatalf("init metrics failed: %v", err)
	}
	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

	reporters := []schedule.Reporter{m, broadcaster}
	if led != nil {
		reporters = append(reporters, led)
	}

	// Build the capture loop
	debug.Step(4, "Creating capture cycle and scheduler")
	cycle := capture.NewCycle(source, placeholder.Default(), writer, cfg.CaptureTimeout())
	sched, err := schedule.New(cycle, m.SnapshotCounter(), schedule.Config{
		Interval:  cfg.Sleep(),
		MaxCycles: cfg.Schedule.MaxCycles,
	}, reporters...)
	if err != nil {
		log.Fatalf("init scheduler failed: %v", err)
	}

	// Metrics / status server stops with the scheduler, and the scheduler
	// stops if the server dies: capturing without metrics is not a valid state.
	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	srvCtx, stopServer := context.WithCancel(ctx)
	srvDone := make(chan struct{})
	if cfg.Metrics.Addr != "" {
		srv := web.NewServer(cfg.Metrics.Addr, web.NewHandlers(broadcaster, sched, m.Handler()))
		ln, err := srv.Listen()
		if err != nil {
			log.Fatalf("init web server failed: %v", err)
		}
		go func() {
			defer close(srvDone)
			if err := srv.Serve(srvCtx, ln); err != nil {
				log.Printf("web server: %v", err)
				stopRun()
			}
		}()
	} else {
		close(srvDone)
	}

	debug.Section("Starting Capture Loop")
	if err := sched.Run(runCtx); err != nil {
		log.Printf("scheduler: %v", err)
	}
	stopServer()
	<-srvDone

	st := sched.Status()
	debug.Section("Capture Loop Stopped")
	debug.Info("Cycles: %d (accepted %d, rejected %d, failed %d)", st.Cycles, st.Accepted, st.Rejected, st.Failed)
}

// newSourceFromConfig selects a frame source implementation based on configuration.
// RTSP frames are written by the external tool straight to the writer's next path.
func newSourceFromConfig(cfg *config.Config, writer *snapshot.Writer) (camera.Source, error) {
	switch cfg.Feed.CameraType {
	case config.CameraHTTP:
		return camera.NewHTTPSource(cfg.Feed.URL, &http.Client{}), nil
	case config.CameraRTSP:
		return camera.NewProcessSource(camera.ProcessConfig{
			Command:   cfg.RTSP.Command,
			StreamURL: cfg.Feed.URL,
			Transport: cfg.RTSP.Transport,
			NextPath:  writer.NextPath,
		}, camera.ExecRunner{}), nil
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", cfg.Feed.CameraType)
	}
}

// newIndicatorFromConfig builds the capture LED. With no pin configured it
// returns nils and never touches GPIO, so hosts without GPIO still start.
func newIndicatorFromConfig(cfg *config.Config, newDriver func(mock bool) (gpio.Driver, error)) (*indicator.Indicator, gpio.Driver, error) {
	if cfg.Indicator.Pin <= 0 {
		debug.Verbose("Indicator disabled (no pin)")
		return nil, nil, nil
	}

	debug.Value("Mock GPIO", cfg.MockGPIO())
	drv, err := newDriver(cfg.MockGPIO())
	if err != nil {
		return nil, nil, fmt.Errorf("init GPIO: %w", err)
	}
	led, err := indicator.New(drv, cfg.Indicator.Pin, cfg.IndicatorPulse())
	if err != nil {
		drv.Close()
		return nil, nil, err
	}
	debug.Value("Indicator pin", cfg.Indicator.Pin)
	return led, drv, nil
}

// cyclesFlag implements flag.Value for -cycles; unset leaves MAX_CYCLES untouched.
type cyclesFlag struct {
	val int
	set bool
}

func (c *cyclesFlag) String() string {
	if !c.set {
		return ""
	}
	return strconv.Itoa(c.val)
}

func (c *cyclesFlag) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("cycles must be >= 0, got %d", v)
	}
	c.val = v
	c.set = true
	return nil
}

func (c *cyclesFlag) apply(cfg *config.Config) {
	if c.set {
		cfg.Schedule.MaxCycles = c.val
	}
}
