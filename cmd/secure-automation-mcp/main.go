// secure-automation-mcp is an MCP server providing security-hardening
// primitives for automation that handles sensitive data: secure temp
// storage, multi-pass file shredding, path validation, allowlisted
// command execution, secret stashing, and a tamper-evident audit trail.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/huh"

	"github.com/acolita/secure-automation-mcp/internal/config"
	"github.com/acolita/secure-automation-mcp/internal/logging"
	"github.com/acolita/secure-automation-mcp/internal/mcp"
	"github.com/acolita/secure-automation-mcp/internal/pathcheck"
	"github.com/acolita/secure-automation-mcp/internal/storage"
)

// Version information - set at build time.
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var (
		configPath  string
		shredPath   string
		showVersion bool
		debug       bool
		yes         bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&shredPath, "shred", "", "Securely delete the given file and exit")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&yes, "yes", false, "Skip the confirmation prompt in -shred mode")
	flag.Parse()

	if showVersion {
		fmt.Printf("secure-automation-mcp version %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		os.Exit(0)
	}

	// Load configuration, falling back to the XDG default location
	loadPath := configPath
	if loadPath == "" {
		loadPath = config.DefaultConfigPath()
	}
	cfg, err := config.Load(loadPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Enable debug mode if flag is set
	if debug {
		cfg.Logging.Level = "debug"
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	logging.Setup(cfg.Logging.Level, cfg.Logging.Sanitize)

	if shredPath != "" {
		os.Exit(runShred(cfg, shredPath, yes))
	}

	slog.Info("starting secure-automation-mcp",
		slog.String("version", Version),
	)

	// Create MCP server
	server, err := mcp.NewServer(cfg, slog.Default())
	if err != nil {
		slog.Error("server init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up config hot-reload if config file was provided
	var configWatcher *config.Watcher
	if configPath != "" {
		var watcherErr error
		configWatcher, watcherErr = config.NewWatcher(configPath, func(newCfg *config.Config) {
			// Apply command line overrides to new config
			if debug {
				newCfg.Logging.Level = "debug"
			}
			server.UpdateConfig(newCfg)
		})
		if watcherErr != nil {
			slog.Warn("config hot-reload disabled",
				slog.String("error", watcherErr.Error()),
			)
		} else {
			slog.Info("config hot-reload enabled",
				slog.String("path", configPath),
			)
		}
	}

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("received shutdown signal")
		if configWatcher != nil {
			configWatcher.Close()
		}
		if err := server.Shutdown(); err != nil {
			slog.Error("shutdown error", slog.String("error", err.Error()))
			os.Exit(1)
		}
		os.Exit(0)
	}()

	// Run the server
	err = server.Run()
	if configWatcher != nil {
		configWatcher.Close()
	}
	if shutdownErr := server.Shutdown(); shutdownErr != nil {
		slog.Error("shutdown error", slog.String("error", shutdownErr.Error()))
	}
	if err != nil {
		slog.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// runShred is the standalone -shred mode: validate the path against the
// configured policy, confirm with the operator, then overwrite and unlink.
func runShred(cfg *config.Config, path string, skipConfirm bool) int {
	validator, err := pathcheck.New(cfg.Security.DeniedPathGlobs...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid denied path pattern: %v\n", err)
		return 1
	}

	resolved, err := validator.Validate(path, cfg.Security.AllowedBase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Refusing to shred %s: %v\n", path, err)
		return 1
	}

	info, err := os.Lstat(resolved)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot stat %s: %v\n", resolved, err)
		return 1
	}

	if !skipConfirm {
		var confirmed bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Shred %s (%d bytes)?", resolved, info.Size())).
					Description("The file will be overwritten and unlinked. This cannot be undone.").
					Value(&confirmed),
			),
		)
		if err := form.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Prompt failed: %v\n", err)
			return 1
		}
		if !confirmed {
			fmt.Fprintln(os.Stderr, "Aborted.")
			return 1
		}
	}

	store, err := storage.Open(storage.WithPasses(cfg.Storage.WipePasses))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Storage init failed: %v\n", err)
		return 1
	}
	defer store.Cleanup()

	if err := store.SecureDelete(resolved, cfg.Storage.WipePasses); err != nil {
		fmt.Fprintf(os.Stderr, "Shred failed: %v\n", err)
		return 1
	}

	fmt.Printf("Shredded %s (%d passes + zero pass)\n", resolved, cfg.Storage.WipePasses)
	return 0
}
