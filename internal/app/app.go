package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "fetch":
		return runFetch(args[1:])
	case "extract":
		return runExtract(args[1:])
	case "normalize":
		return runNormalize(args[1:])
	case "dedup":
		return runDedup(args[1:])
	case "process", "run-once":
		return runProcess(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "events-pipeline CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  events-pipeline <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health     Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  fetch      Fetch active source feeds into raw items")
	fmt.Fprintln(os.Stderr, "  extract    Decode pending raw items into raw events")
	fmt.Fprintln(os.Stderr, "  normalize  Promote pending raw events to event candidates")
	fmt.Fprintln(os.Stderr, "  dedup      Resolve unchecked candidates to canonical or duplicate")
	fmt.Fprintln(os.Stderr, "  process    Run fetch + extract + normalize + dedup until drained")
	fmt.Fprintln(os.Stderr, "  run-once   Alias for process")
	fmt.Fprintln(os.Stderr, "  serve      Start the read-only ops API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"events-pipeline <command> -h\" for command-specific flags.")
}
