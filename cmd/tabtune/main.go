package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("tabtune v%s\n", version)
	fmt.Println("Playback speed and volume boost daemon for browser media")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  tabtune [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Daemon that controls the playback speed and volume boost of media in the")
	fmt.Println("  active browser tab (or a local audio file). Controlled over a Unix socket")
	fmt.Println("  (tabtune-ctl), a small web UI and optional hardware keys / rotary knob.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (optional)")
	fmt.Println()
	fmt.Println("  -env-file string")
	fmt.Println("        Dotenv file with TABTUNE_* overrides (default \".env\", ignored if missing)")
	fmt.Println()
	fmt.Println("  -browser string")
	fmt.Println("        Backend: chrome|local (default \"chrome\")")
	fmt.Println()
	fmt.Println("  -cdp-url string")
	fmt.Println("        DevTools URL of a running browser (empty launches one)")
	fmt.Println()
	fmt.Println("  -chrome-path string")
	fmt.Println("        Browser binary to launch")
	fmt.Println()
	fmt.Println("  -headless")
	fmt.Println("        Launch the browser headless")
	fmt.Println()
	fmt.Println("  -local-file string")
	fmt.Println("        Audio file (mp3/wav) for the local backend")
	fmt.Println()
	fmt.Println("  -max-gain float")
	fmt.Printf("        Volume boost ceiling (default %.0f)\n", defaultMaxGain)
	fmt.Println()
	fmt.Println("  -store string")
	fmt.Println("        SQLite file for remembered positions (empty keeps them in memory)")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultIPCSocket)
	fmt.Println()
	fmt.Println("  -http-port int")
	fmt.Printf("        Web UI / state websocket port, 0 disables (default %d)\n", defaultHTTPPort)
	fmt.Println()
	fmt.Println("  -input-device string")
	fmt.Println("        Linux input event device for keys / rotary knob")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Attach to a browser started with --remote-debugging-port=9222")
	fmt.Println("  tabtune -cdp-url http://127.0.0.1:9222")
	fmt.Println()
	fmt.Println("  # Play a local file and remember settings")
	fmt.Println("  tabtune -browser local -local-file ~/Music/talk.mp3 -store ~/.tabtune.db")
	fmt.Println()
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		envFile    = flag.String("env-file", ".env", "Dotenv file with TABTUNE_* overrides")

		backend     = flag.String("browser", "", "Backend: chrome|local")
		cdpURL      = flag.String("cdp-url", "", "DevTools URL of a running browser")
		chromePath  = flag.String("chrome-path", "", "Browser binary to launch")
		headless    = flag.Bool("headless", false, "Launch the browser headless")
		localFile   = flag.String("local-file", "", "Audio file for the local backend")
		maxGain     = flag.Float64("max-gain", defaultMaxGain, "Volume boost ceiling")
		storePath   = flag.String("store", "", "SQLite file for remembered positions")
		ipcSocket   = flag.String("ipc-socket", defaultIPCSocket, "Unix domain socket path for IPC")
		httpPort    = flag.Int("http-port", defaultHTTPPort, "Web UI port (0 disables)")
		inputDevice = flag.String("input-device", "", "Linux input event device")
		logLevelStr = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		showVersion = flag.Bool("version", false, "Print version and exit")
		showHelp    = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	lookup, err := NewEnvLookup(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	// Only flags given on the command line override the file.
	var o FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "browser":
			o.Backend = backend
		case "cdp-url":
			o.CDPURL = cdpURL
		case "chrome-path":
			o.ChromePath = chromePath
		case "headless":
			o.Headless = headless
		case "local-file":
			o.LocalFile = localFile
		case "max-gain":
			o.MaxGain = maxGain
		case "store":
			o.StorePath = storePath
		case "ipc-socket":
			o.IPCSocketPath = ipcSocket
		case "http-port":
			o.HTTPPort = httpPort
		case "input-device":
			o.InputDevice = inputDevice
		case "log-level":
			o.LogLevel = logLevelStr
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging.Level, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("tabtune stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("shutting down")
}

// run wires the backend, controllers and servers and blocks until ctx is
// canceled or one of them fails.
func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	browser, closeBrowser, err := openBrowser(cfg, logger)
	if err != nil {
		return err
	}
	defer closeBrowser()

	store, err := openStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	speed := NewSpeedController(browser, cfg.speedInterval(), cfg.browserTimeout(), logger)
	defer speed.Close()

	fx := &Effects{
		Speed:   speed,
		Boost:   NewVolumeBooster(browser, cfg.Boost.MaxGain, logger),
		Store:   store,
		Timeout: cfg.browserTimeout(),
	}

	// Central event bus
	events := make(chan Event, 64)
	broadcasts := make(chan StateBroadcast, 128)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runDaemon(ctx, events, broadcasts, fx, cfg.ToReducerConfig(), &DaemonState{}, cfg.Daemon.UpdateHz, logger)
		return nil
	})

	g.Go(func() error {
		return runIPCServer(ctx, ExpandPath(cfg.IPC.SocketPath), events, logger)
	})

	if cfg.HTTP.Port > 0 {
		ws := NewServer(logger, events, ServerConfig{})
		g.Go(func() error {
			ws.Hub().Run(ctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(ctx, ws.Hub(), broadcasts, logger)
			return nil
		})
		addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.HTTP.Port))
		g.Go(func() error {
			return runHTTPServer(ctx, addr, newHTTPHandler(events, ws, logger), logger)
		})
	} else {
		// Nobody listens for broadcasts; keep the queue drained.
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-broadcasts:
				}
			}
		})
	}

	if len(cfg.Input.Devices) > 0 {
		g.Go(func() error {
			err := runInput(ctx, cfg.Input.Devices, events, logger)
			if err != nil {
				logger.Error("input reader stopped", "error", err, "tip", "run as root or add user to 'input' group")
			}
			return err
		})
	}

	logger.Info("listening",
		"version", version,
		"backend", cfg.Browser.Backend,
		"ipc", cfg.IPC.SocketPath,
		"http_port", cfg.HTTP.Port,
		"store", cfg.Store.Path,
		"input_devices", cfg.Input.Devices,
		"update_rate_hz", cfg.Daemon.UpdateHz)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openBrowser builds the configured backend and its close function.
func openBrowser(cfg Config, logger *slog.Logger) (Browser, func(), error) {
	switch cfg.Browser.Backend {
	case BackendLocal:
		p, err := OpenLocalPlayer(ExpandPath(cfg.Local.File), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open local player: %w", err)
		}
		return p, func() {
			if err := p.Close(); err != nil {
				logger.Warn("close local player", "error", err)
			}
		}, nil
	default:
		b := NewChromeBrowser(ChromeConfig{
			CDPURL:   cfg.Browser.CDPURL,
			ExecPath: ExpandPath(cfg.Browser.ChromePath),
			Headless: cfg.Browser.Headless,
		}, logger)
		return b, b.Close, nil
	}
}
