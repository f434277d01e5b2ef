package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/image-integrity-mcp/internal/config"
	"github.com/ironsheep/image-integrity-mcp/internal/engine"
	"github.com/ironsheep/image-integrity-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const (
	envLogLevel = "IMAGE_INTEGRITY_LOG_LEVEL"
	envConfig   = "IMAGE_INTEGRITY_CONFIG"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("image-integrity-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printUsage()
			return
		case "scan":
			os.Exit(runScan(os.Args[2:]))
		}
	}

	// Configure logging to stderr (stdout is for MCP protocol)
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	debug := os.Getenv(envLogLevel) == "debug"
	if debug {
		log.Printf("Image Integrity MCP Server v%s (built %s, commit %s)", Version, BuildTime, GitCommit)
	}

	cfg, err := config.Load(os.Getenv(envConfig))
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	analyzer := engine.NewAnalyzer(cfg, engine.WithLogger(newLogger(debug, slog.LevelWarn)))
	srv := server.New(analyzer)
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Server error: %v", err)
	}
}

// newLogger returns a text logger on stderr at level, or at debug level
// when debug is set.
func newLogger(debug bool, level slog.Level) *slog.Logger {
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func printUsage() {
	fmt.Println("image-integrity-mcp - MCP server for image integrity and steganalysis")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  image-integrity-mcp [options]          Run the MCP server on stdin/stdout")
	fmt.Println("  image-integrity-mcp scan [flags] DIR   Scan a directory from the command line")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  IMAGE_INTEGRITY_LOG_LEVEL=debug    Enable debug logging")
	fmt.Println("  IMAGE_INTEGRITY_CONFIG=PATH        YAML configuration file")
	fmt.Println()
	fmt.Println("The server communicates via MCP protocol over stdin/stdout.")
	fmt.Println("Run 'image-integrity-mcp scan --help' for scan flags.")
}
