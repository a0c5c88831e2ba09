// run.go implements the 'uniproc run' command.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kolkov/uniproc/internal/kernel/trace"
	"github.com/kolkov/uniproc/internal/scenario"
)

const defaultTimeout = 10 * time.Second

// runConfig holds the parsed 'run' arguments.
type runConfig struct {
	file    string
	verbose bool
	json    bool
	quiet   bool
	timeout time.Duration
}

// runCommand implements the 'uniproc run' command.
//
// Flow:
//  1. Parse flags and the scenario path
//  2. Load and validate the scenario
//  3. Run it on a fresh machine
//  4. Print the trace and a summary
//
// Example:
//
//	uniproc run examples/scenarios/donation.json
//	uniproc run -v -timeout 2s examples/scenarios/chain.json
func runCommand(args []string) {
	config, err := parseRunArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(config, os.Stderr)
	if err := runScenario(config, logger, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}
}

// parseRunArgs parses flags followed by exactly one scenario file.
func parseRunArgs(args []string) (*runConfig, error) {
	config := &runConfig{timeout: defaultTimeout}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-v":
			config.verbose = true
		case arg == "-json":
			config.json = true
		case arg == "-q":
			config.quiet = true
		case arg == "-timeout":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("-timeout requires a duration")
			}
			i++
			d, err := time.ParseDuration(args[i])
			if err != nil {
				return nil, fmt.Errorf("invalid -timeout: %w", err)
			}
			config.timeout = d
		case strings.HasPrefix(arg, "-"):
			return nil, fmt.Errorf("unknown flag: %s", arg)
		case config.file != "":
			return nil, fmt.Errorf("only one scenario file can be run at a time")
		default:
			config.file = arg
		}
	}

	if config.file == "" {
		return nil, fmt.Errorf("no scenario file specified")
	}
	if config.timeout <= 0 {
		return nil, fmt.Errorf("-timeout must be positive")
	}
	return config, nil
}

// newLogger builds the logger for a run.
func newLogger(config *runConfig, out io.Writer) *log.Entry {
	logger := log.New()
	logger.SetOutput(out)
	if config.json {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	}
	if config.verbose {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.WarnLevel)
	}
	return log.NewEntry(logger)
}

// runScenario loads and runs config.file and writes the report to out.
// The report is written even when the run fails.
func runScenario(config *runConfig, logger *log.Entry, out io.Writer) error {
	sc, err := scenario.Load(config.file)
	if err != nil {
		return err
	}

	runner := &scenario.Runner{Log: logger}
	if config.verbose {
		runner.Sinks = append(runner.Sinks, trace.NewLogSink(logger))
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.timeout)
	defer cancel()

	name := sc.Name
	if name == "" {
		name = config.file
	}
	fmt.Fprintf(out, "scenario %s\n", name)

	res, runErr := runner.Run(ctx, sc)
	if !config.quiet {
		for _, e := range res.Events {
			fmt.Fprintln(out, e.String())
		}
	}
	printSummary(out, res)
	return runErr
}

// printSummary writes counters, final priorities and semaphore values.
func printSummary(out io.Writer, res *scenario.Result) {
	s := res.Stats
	fmt.Fprintf(out, "threads=%d switches=%d yields=%d donations=%d interrupts=%d/%d\n",
		s.Threads, s.ContextSwitches, s.Yields, s.Donations, s.InterruptsDelivered, s.InterruptsRaised)

	if len(res.Priorities) > 0 {
		fmt.Fprintf(out, "priorities: %s\n", joinSorted(res.Priorities))
	}
	if len(res.Values) > 0 {
		fmt.Fprintf(out, "semaphores: %s\n", joinSorted(res.Values))
	}
}

func joinSorted[V int | uint](m map[string]V) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, m[k])
	}
	return strings.Join(parts, " ")
}
