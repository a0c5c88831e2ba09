// Package main implements the uniproc CLI tool.
//
// uniproc runs scripted workloads (scenarios) on a simulated
// single-processor kernel and prints the resulting scheduling trace. It is
// used to explore and regression-test priority scheduling, semaphores,
// locks with priority donation, and condition variables.
//
// Usage:
//
//	uniproc run scenario.json          # Run and print the trace
//	uniproc run -v scenario.json       # Also log each event as it happens
//	uniproc validate scenario.json     # Check a scenario without running it
package main

import (
	"fmt"
	"os"

	"github.com/kolkov/uniproc/kernel"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "run":
		runCommand(os.Args[2:])
	case "validate":
		validateCommand(os.Args[2:])
	case "version", "--version":
		info := kernel.GetInfo()
		fmt.Printf("uniproc version %s (scenario format %s)\n", info.Version, info.ScenarioFormat)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`uniproc - uniprocessor kernel synchronization simulator

USAGE:
    uniproc <command> [arguments]

COMMANDS:
    run        Run a scenario and print its trace
    validate   Check a scenario file without running it
    version    Show version information
    help       Show this help message

RUN FLAGS:
    -v             Log every event as it happens (debug level)
    -json          Log in JSON instead of text
    -q             Print only the summary, not the trace
    -timeout d     Stop the run after duration d (default 10s)

SCENARIO OPS:
    down, try_down, up, interrupt_up, expect_value      target: semaphore
    acquire, try_acquire, release                       target: lock
    wait, signal, broadcast                             target: condition, lock: lock
    set_priority, expect_priority                       value: priority
    spawn                                               target: deferred thread
    yield, note

EXAMPLES:
    # Run the priority donation example
    uniproc run examples/scenarios/donation.json

    # Check every scenario in a directory
    for f in examples/scenarios/*.json; do uniproc validate "$f"; done

ABOUT:
    Threads run one at a time on a single simulated CPU. The highest
    priority ready thread runs; equal priorities run in FIFO order.
    A thread blocked on a lock donates its priority to the holder, and
    the donation follows chains of lock waits.

`)
}
