// Command simulator-server attaches to one running iOS simulator, streams
// its framebuffer as MJPEG over loopback HTTP, and injects touch events read
// from standard input; button, key and rotate commands are accepted and
// logged but not acted on. The two lines this process ever writes
// to stdout (stream_ready, fps_report) are the only output external callers
// should parse; everything diagnostic goes to stderr.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/breeze-rmm/simulator-server/internal/bridge"
	"github.com/breeze-rmm/simulator-server/internal/command"
	"github.com/breeze-rmm/simulator-server/internal/config"
	"github.com/breeze-rmm/simulator-server/internal/dispatch"
	"github.com/breeze-rmm/simulator-server/internal/encoder"
	"github.com/breeze-rmm/simulator-server/internal/hid"
	"github.com/breeze-rmm/simulator-server/internal/logging"
	"github.com/breeze-rmm/simulator-server/internal/mjpeg"
)

var log = logging.L("main")

var (
	cfg        = config.Default()
	verboseLog bool
)

var rootCmd = &cobra.Command{
	Use:           "simulator-server",
	Short:         "Stream one iOS simulator's display over MJPEG and inject input",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Flags(), args)
	},
}

func init() {
	rootCmd.Flags().StringVar(&cfg.UDID, "udid", "", "simulator device UDID (required)")
	rootCmd.Flags().IntVar(&cfg.FPS, "fps", cfg.FPS, "target capture FPS, clamped to [1,120]")
	rootCmd.Flags().Float64Var(&cfg.Quality, "quality", cfg.Quality, "JPEG quality, clamped to [0.1,1.0]")
	var port int
	rootCmd.Flags().IntVar(&port, "port", 0, "loopback bind port, 0 for ephemeral")
	rootCmd.Flags().BoolVar(&verboseLog, "verbose", false, "enable debug-level logging")
	rootCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if port < 0 || port > 65535 {
			port = 0
		}
		cfg.Port = uint16(port)
		cfg.Verbose = verboseLog
		return nil
	}

	// The whitelist keeps an unknown flag from failing Execute, but pflag
	// then drops the token before RunE ever sees it, so the warning half of
	// "logged and ignored" comes from run scanning os.Args with unknownFlags.
	rootCmd.FParseErrWhitelist.UnknownFlags = true
}

// unknownFlags returns every flag-shaped argument that does not match a
// registered flag. pflag's UnknownFlags whitelist discards such tokens
// during parsing without surfacing them anywhere, so this pre-scan is the
// only place they can be reported.
func unknownFlags(fs *pflag.FlagSet, args []string) []string {
	var unknown []string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") || arg == "-" || arg == "--" {
			continue
		}

		if !strings.HasPrefix(arg, "--") {
			// Shorthand group like -v or -vq: unknown if any letter in it
			// has no registered shorthand.
			for _, c := range strings.TrimPrefix(arg, "-") {
				if fs.ShorthandLookup(string(c)) == nil {
					unknown = append(unknown, arg)
					break
				}
			}
			continue
		}

		name := strings.TrimPrefix(arg, "--")
		if i := strings.Index(name, "="); i >= 0 {
			name = name[:i]
		}
		if name != "" && fs.Lookup(name) == nil {
			unknown = append(unknown, arg)
		}
	}
	return unknown
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "usage: simulator-server --udid <uuid> [--fps N] [--quality Q] [--port P]")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run wires the components leaves-first (the injector and encoder need the
// resolved device, the server needs encoded output, the reader needs the
// injector and the FPS flag) and then runs the paced loop that never
// suspends on I/O.
func run(fs *pflag.FlagSet, unparsedArgs []string) error {
	logging.Init("info", cfg.Verbose, os.Stderr)

	for _, flag := range unknownFlags(fs, os.Args[1:]) {
		log.Warn("ignoring unknown flag", "flag", flag)
	}
	for _, unknown := range unparsedArgs {
		log.Warn("ignoring unrecognized argument", "arg", unknown)
	}

	// Validate clamps fps/quality in place and logs each adjustment; a
	// missing UDID is the one condition it cannot clamp away.
	cfg.Validate()
	if cfg.UDID == "" {
		return fmt.Errorf("--udid is required")
	}

	log.Info("starting simulator-server", "udid", cfg.UDID, "fps", cfg.FPS, "quality", cfg.Quality)

	surfaceQueue := dispatch.New("surface-dispatch", 4)
	commandQueue := dispatch.New("command-dispatch", 16)

	br := bridge.New(bridge.NewResolver(), cfg.FPS, surfaceQueue)

	ring := mjpeg.NewRing(5)
	server := mjpeg.NewServer(ring)

	drv := &driver{
		server:  server,
		quality: cfg.Quality,
	}

	if err := br.Start(cfg.UDID, drv.onSurface); err != nil {
		return fmt.Errorf("device bridge: %w", err)
	}
	log.Info("device bridge ready", "mode", br.Mode())

	injector, err := hid.Start(hid.NewResolver(), cfg.UDID)
	if err != nil {
		return fmt.Errorf("hid injector: %w", err)
	}

	boundPort, err := server.Start(cfg.Port)
	if err != nil {
		return fmt.Errorf("mjpeg server: %w", err)
	}

	shutdown := func() {
		log.Info("releasing resources")
		_ = server.Stop()
		_ = injector.Close()
		_ = br.Stop()
		commandQueue.StopAccepting()
		surfaceQueue.StopAccepting()
	}

	handlers := command.Handlers{
		OnTouch: func(phase command.Phase, points []command.Point) {
			injector.SendTouch(phase, points)
		},
		OnButton: func(name string, dir command.Direction) {
			log.Info("button command (stub, not acted on)", "name", name, "direction", dir)
		},
		OnKey: func(code int, dir command.Direction) {
			log.Info("key command (stub, not acted on)", "code", code, "direction", dir)
		},
		OnRotate: func(rotation string) {
			log.Info("rotate command (stub, not acted on)", "rotation", rotation)
		},
		OnFPS: func(enabled bool) {
			drv.setFPSReporting(enabled)
		},
		OnShutdown: func() {
			shutdown()
			os.Exit(0)
		},
	}
	reader := command.New(os.Stdin, handlers, commandQueue)
	go reader.Run()

	// The stream_ready handshake is the one synchronization point external
	// orchestrators rely on: emitted exactly once, after the HTTP port is
	// bound, before anything else touches stdout.
	fmt.Printf("stream_ready http://127.0.0.1:%d/stream.mjpeg\n", boundPort)
	os.Stdout.Sync()

	drv.pacedLoop()
	return nil
}

// driver owns the encoder slot (replaced whenever surface geometry changes)
// and the counters the fps_report line reports. Its onSurface is the
// callback handed to Bridge.Start, which always runs it on the
// surface-dispatch queue, so no locking is needed around the encoder slot
// itself.
type driver struct {
	server  *mjpeg.Server
	quality float64

	// enc is only ever touched from the surface-dispatch queue (the sole
	// caller of onSurface), so it needs no lock of its own.
	enc *encoder.Encoder

	// frameCount/encodedFrames are written from the surface-dispatch queue
	// and read from the main thread's paced loop, so both are atomic.
	frameCount    atomic.Uint64
	encodedFrames atomic.Uint64

	fpsEnabled atomic.Bool
	startedAt  time.Time
}

func (d *driver) setFPSReporting(enabled bool) {
	d.fpsEnabled.Store(enabled)
}

func (d *driver) fpsReportingEnabled() bool {
	return d.fpsEnabled.Load()
}

// onSurface runs on the surface-dispatch queue: it is the single caller of
// the encoder and the single submitter to the frame ring.
func (d *driver) onSurface(surface bridge.Surface) {
	if surface == nil {
		log.Warn("nil surface observed, ignoring")
		return
	}
	d.frameCount.Add(1)

	if d.enc == nil || d.enc.Width() != surface.Width() || d.enc.Height() != surface.Height() {
		if d.enc != nil {
			d.enc.Close()
		}
		log.Info("surface geometry changed, replacing encoder",
			"width", surface.Width(), "height", surface.Height())
		d.enc = encoder.New(surface.Width(), surface.Height(), d.quality)
	}

	jpegBytes, err := d.enc.Encode(surface)
	if err != nil {
		log.Warn("encode failed, dropping frame", "error", err)
		return
	}

	d.encodedFrames.Add(1)
	d.server.Submit(jpegBytes)
}

// pacedLoop runs the main-thread loop: absolute-time scheduling with a
// spin-wait in the last ~1ms for accuracy, never suspending on I/O,
// emitting one fps_report per second while enabled.
func (d *driver) pacedLoop() {
	d.startedAt = time.Now()
	tickInterval := time.Second
	next := d.startedAt.Add(tickInterval)

	for {
		now := time.Now()
		wait := next.Sub(now)
		if wait > time.Millisecond {
			time.Sleep(wait - time.Millisecond)
		}
		for time.Now().Before(next) {
			// spin-wait the last ~1ms for timing accuracy
		}
		next = next.Add(tickInterval)

		if d.fpsReportingEnabled() {
			d.emitFPSReport()
		}
	}
}

type fpsReport struct {
	FrameCount    uint64  `json:"frame_count"`
	EncodedFrames uint64  `json:"encoded_frames"`
	FPS           float64 `json:"fps"`
	Elapsed       float64 `json:"elapsed"`
}

func (d *driver) emitFPSReport() {
	elapsed := time.Since(d.startedAt).Seconds()
	encoded := d.encodedFrames.Load()
	fps := 0.0
	if elapsed > 0 {
		fps = float64(encoded) / elapsed
	}

	report := fpsReport{
		FrameCount:    d.frameCount.Load(),
		EncodedFrames: encoded,
		FPS:           roundTo(fps, 1),
		Elapsed:       roundTo(elapsed, 2),
	}

	out, err := json.Marshal(report)
	if err != nil {
		log.Warn("failed to marshal fps report", "error", err)
		return
	}
	fmt.Printf("fps_report %s\n", out)
	os.Stdout.Sync()
}

func roundTo(v float64, decimals int) float64 {
	scale := 1.0
	for i := 0; i < decimals; i++ {
		scale *= 10
	}
	return float64(int64(v*scale+0.5)) / scale
}
