// validate.go implements the 'uniproc validate' command.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kolkov/uniproc/internal/scenario"
)

// validateCommand implements the 'uniproc validate' command.
//
// Example:
//
//	uniproc validate examples/scenarios/chain.json
func validateCommand(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no scenario files specified")
		os.Exit(1)
	}
	failed := 0
	for _, path := range args {
		if !validateFile(path, os.Stdout, os.Stderr) {
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// validateFile reports whether the scenario at path is valid.
func validateFile(path string, stdout, stderr io.Writer) bool {
	sc, err := scenario.Load(path)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return false
	}
	deferred := 0
	for _, t := range sc.Threads {
		if t.Deferred {
			deferred++
		}
	}
	fmt.Fprintf(stdout, "%s: ok (%s, %d threads, %d deferred)\n", path, sc.Version, len(sc.Threads), deferred)
	return true
}
