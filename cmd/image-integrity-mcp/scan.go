package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/ironsheep/image-integrity-mcp/internal/checkpoint"
	"github.com/ironsheep/image-integrity-mcp/internal/config"
	"github.com/ironsheep/image-integrity-mcp/internal/engine"
)

// Exit codes of the scan command.
const (
	exitClean       = 0
	exitFlagged     = 1
	exitUsage       = 2
	exitWriteFailed = 3
	exitInterrupted = 130
)

var (
	infoColor    = color.New(color.FgBlue).SprintFunc()
	successColor = color.New(color.FgGreen).SprintFunc()
	warningColor = color.New(color.FgYellow).SprintFunc()
	errorColor   = color.New(color.FgRed).SprintFunc()
	alertColor   = color.New(color.FgRed, color.Bold).SprintFunc()
)

type scanFlags struct {
	configPath    string
	formats       []string
	recursive     bool
	workers       int
	sensitivity   string
	strictness    string
	ignoreEOF     bool
	checkpointDir string
	noCheckpoint  bool
	jsonOutput    bool
	listSessions  bool
	quiet         bool
}

func runScan(args []string) int {
	return scanCommand(args, os.Stdout, os.Stderr)
}

func scanCommand(args []string, stdout, stderr io.Writer) int {
	var f scanFlags
	flagSet := pflag.NewFlagSet("scan", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&f.configPath, "config", "c", os.Getenv(envConfig), "YAML configuration file")
	flagSet.StringSliceVar(&f.formats, "formats", nil, "formats to scan (default from config: JPEG,PNG)")
	flagSet.BoolVarP(&f.recursive, "recursive", "r", true, "descend into subdirectories")
	flagSet.IntVarP(&f.workers, "workers", "w", 0, "worker count (default: number of CPUs)")
	flagSet.StringVar(&f.sensitivity, "sensitivity", "", "validation sensitivity: low, medium, high")
	flagSet.StringVar(&f.strictness, "strictness", "", "visual and steganalysis strictness: low, medium, high")
	flagSet.BoolVar(&f.ignoreEOF, "ignore-eof", false, "report a missing end marker as info only")
	flagSet.StringVar(&f.checkpointDir, "checkpoint-dir", "", "directory for resumable scan sessions")
	flagSet.BoolVar(&f.noCheckpoint, "no-checkpoint", false, "do not read or write checkpoints")
	flagSet.BoolVar(&f.jsonOutput, "json", false, "print one JSON report per line")
	flagSet.BoolVar(&f.listSessions, "list-sessions", false, "list checkpoint sessions and exit")
	flagSet.BoolVarP(&f.quiet, "quiet", "q", false, "only print flagged files and the summary")
	help := flagSet.BoolP("help", "h", false, "show help")
	flagSet.Usage = func() {
		fmt.Fprintln(stderr, "Usage: image-integrity-mcp scan [flags] DIR")
		fmt.Fprintln(stderr)
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitClean
		}
		return exitUsage
	}
	if *help {
		flagSet.Usage()
		return exitClean
	}

	cfg, err := scanConfig(f, flagSet)
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorColor("error:"), err)
		return exitUsage
	}

	base := f.checkpointDir
	if base == "" {
		base = defaultCheckpointDir(cfg)
	}

	if f.listSessions {
		return printSessions(stdout, stderr, base)
	}

	if flagSet.NArg() != 1 {
		flagSet.Usage()
		return exitUsage
	}
	root := flagSet.Arg(0)

	formats, err := engine.ParseFormats(cfg.Scan.Formats)
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorColor("error:"), err)
		return exitUsage
	}
	paths, err := engine.Discover(root, formats, cfg.Scan.Recursive)
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorColor("error:"), err)
		return exitUsage
	}

	logger := newLogger(os.Getenv(envLogLevel) == "debug", slog.LevelWarn)
	opts := engine.ScanOptions{
		Workers:  cfg.Scan.Workers,
		Analyzer: engine.NewAnalyzer(cfg, engine.WithLogger(logger)),
	}

	var store *checkpoint.FileStore
	if !f.noCheckpoint {
		store, err = checkpoint.OpenFileStore(base, root, cfg.Scan.Formats, cfg.Scan.Recursive, cfg.Fingerprint())
		if err != nil {
			fmt.Fprintf(stderr, "%s %v\n", warningColor("warning:"), err)
		} else {
			opts.Store = store
		}
	}

	if !f.quiet && !f.jsonOutput {
		fmt.Fprintf(stdout, "%s scanning %d files under %s\n", infoColor("[*]"), len(paths), root)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(stdout)
	var writeErr error
	stats, err := engine.Scan(ctx, paths, opts, func(rep *engine.Report) {
		if !f.jsonOutput {
			printReport(stdout, rep, f.quiet)
			return
		}
		if werr := enc.Encode(rep); werr != nil && writeErr == nil {
			writeErr = werr
			fmt.Fprintf(stderr, "%s failed to write report for %s: %v\n", errorColor("error:"), rep.Path(), werr)
		}
	})

	if !f.jsonOutput {
		printStats(stdout, stats)
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s scan interrupted: %v\n", warningColor("[!]"), err)
		if store != nil {
			fmt.Fprintf(stderr, "%s rerun the same command to resume session %s\n",
				infoColor("[*]"), store.Session().ID)
		}
		return exitInterrupted
	}
	if writeErr != nil {
		return exitWriteFailed
	}
	if stats.Corrupt > 0 || stats.Suspicious > 0 || stats.Rejected > 0 || stats.Failed > 0 {
		return exitFlagged
	}
	return exitClean
}

// scanConfig loads the configuration file and applies the flags that
// were set explicitly on top of it.
func scanConfig(f scanFlags, flagSet *pflag.FlagSet) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if flagSet.Changed("formats") {
		cfg.Scan.Formats = f.formats
	}
	if flagSet.Changed("recursive") {
		cfg.Scan.Recursive = f.recursive
	}
	if flagSet.Changed("workers") {
		cfg.Scan.Workers = f.workers
	}
	if f.sensitivity != "" {
		level, err := config.ParseLevel(f.sensitivity)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Validation.Sensitivity = level
	}
	if f.strictness != "" {
		level, err := config.ParseLevel(f.strictness)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Visual.Strictness = level
		cfg.Steganalysis.Strictness = level
	}
	if f.ignoreEOF {
		cfg.Validation.IgnoreEOF = true
	}
	return cfg, nil
}

// defaultCheckpointDir prefers the configured directory, then the user
// cache directory, then the working directory.
func defaultCheckpointDir(cfg config.Config) string {
	if cfg.Scan.CheckpointDir != "" {
		return cfg.Scan.CheckpointDir
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "image-integrity-mcp", "checkpoints")
	}
	return ".image-integrity-checkpoints"
}

func printReport(w io.Writer, rep *engine.Report, quiet bool) {
	var tag string
	switch {
	case rep.Status == engine.StatusError:
		tag = errorColor("[ERROR]")
	case rep.Status == engine.StatusRejected:
		tag = warningColor("[REJECTED]")
	case rep.Suspicious():
		tag = alertColor("[SUSPICIOUS]")
	case rep.Corrupt():
		tag = errorColor("[CORRUPT]")
	default:
		if quiet {
			return
		}
		tag = successColor("[OK]")
	}
	fmt.Fprintf(w, "%s %s: %s\n", tag, rep.Path(), rep.Summary())
}

func printStats(w io.Writer, s engine.ScanStats) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %d files, %d from checkpoint\n", infoColor("[*]"), s.Total, s.Cached)
	fmt.Fprintf(w, "    %s %d\n", successColor("valid:"), s.Valid)
	fmt.Fprintf(w, "    %s %d\n", errorColor("corrupt:"), s.Corrupt)
	fmt.Fprintf(w, "    %s %d\n", alertColor("suspicious:"), s.Suspicious)
	if s.Rejected > 0 {
		fmt.Fprintf(w, "    %s %d\n", warningColor("rejected:"), s.Rejected)
	}
	if s.Failed > 0 {
		fmt.Fprintf(w, "    %s %d\n", errorColor("failed:"), s.Failed)
	}
}

func printSessions(stdout, stderr io.Writer, base string) int {
	sessions, err := checkpoint.ListSessions(base)
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorColor("error:"), err)
		return exitUsage
	}
	if len(sessions) == 0 {
		fmt.Fprintf(stdout, "%s no sessions in %s\n", infoColor("[*]"), base)
		return exitClean
	}
	for _, s := range sessions {
		fmt.Fprintf(stdout, "%s  %s  %d records  %v recursive=%t profile=%s  %s\n",
			s.ID, s.Created.Local().Format("2006-01-02 15:04:05"), s.Records, s.Formats, s.Recursive, s.Profile, s.Root)
	}
	return exitClean
}
