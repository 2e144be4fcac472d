// Command strand works with the strand text core from the shell: it
// diffs and highlights files and hosts shared documents for
// collaborators.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dshills/strand/internal/config"
	"github.com/dshills/strand/internal/logging"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// errUsage marks errors already reported with a usage message.
var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// env is what every subcommand receives.
type env struct {
	cfg    *config.Config
	log    *logging.Logger
	stdout io.Writer
	stderr io.Writer
}

type command struct {
	name  string
	usage string
	run   func(e *env, args []string) (int, error)
}

var commands = []command{
	{"diff", "diff [-unified] [-ignore-space] <reference> <file>", runDiff},
	{"highlight", "highlight [-lang name] [-folds] <file>", runHighlight},
	{"serve", "serve [-addr :8090] [files...]", runServe},
	{"version", "version", runVersion},
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("strand", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to a TOML or YAML configuration file")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error); overrides the config")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: strand [options] <command> [arguments]\n\nCommands:\n")
		for _, c := range commands {
			fmt.Fprintf(stderr, "  strand %s\n", c.usage)
		}
		fmt.Fprintf(stderr, "\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	var loadOpts []config.LoadOption
	if *configPath != "" {
		loadOpts = append(loadOpts, config.WithFile(*configPath))
	}
	cfg, err := config.Load(loadOpts...)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *logLevel != "" {
		switch *logLevel {
		case "debug", "info", "warn", "error":
			cfg.Log.Level = *logLevel
		default:
			fmt.Fprintf(stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", *logLevel)
			return 2
		}
	}
	log := cfg.Log.NewLogger(logging.Config{Output: stderr, Prefix: "strand"})
	logging.SetDefault(log)
	if cfg.Source != "" {
		log.Debug("loaded config from %s", cfg.Source)
	}

	e := &env{cfg: cfg, log: log, stdout: stdout, stderr: stderr}
	name, rest := fs.Arg(0), fs.Args()[1:]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		code, err := c.run(e, rest)
		if err != nil && !errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return code
	}
	fmt.Fprintf(stderr, "Error: unknown command %q\n", name)
	fs.Usage()
	return 2
}

// subcommand parses the flags of one command; want is the number of
// positional arguments, or -1 for any.
func subcommand(e *env, name, usage string, want int, args []string, setup func(*flag.FlagSet)) (*flag.FlagSet, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.Usage = func() {
		fmt.Fprintf(e.stderr, "Usage: strand %s\n", usage)
		fs.PrintDefaults()
	}
	if setup != nil {
		setup(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	if want >= 0 && fs.NArg() != want {
		fs.Usage()
		return nil, errUsage
	}
	return fs, nil
}

func runVersion(e *env, args []string) (int, error) {
	if _, err := subcommand(e, "version", "version", 0, args, nil); err != nil {
		return 2, err
	}
	fmt.Fprintf(e.stdout, "strand %s\nCommit: %s\nBuilt: %s\n", version, commit, date)
	return 0, nil
}
