package main

import (
	"fmt"
	"os"
)

var version = "0.1.0"

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	// exitFatal reports that the dispatch loop lost one of its channels.
	exitFatal = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	if len(argv) < 1 {
		printUsage()
		return exitError
	}

	cmd := argv[0]
	args := argv[1:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)
	case "job":
		return runJobNoun(args)

	// --- ROOT ALIASES ---
	case "start":
		return runStart(args)
	case "version":
		fmt.Printf("kairoi version %s\n", version)
		return exitOK
	case "help", "--help", "-h":
		printUsage()
		return exitOK

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return exitError
	}
}

func printUsage() {
	fmt.Print(`kairoi - fixed-rate job execution dispatcher

Usage:
  kairoi <noun> <action> [flags]

Core Resources (Nouns):
  system    Dispatcher lifecycle
  config    Configuration validation and integrity
  job       Execution requests

System Commands:
  system start      Run the dispatch loop in the foreground
  system watch      Live TUI over the API event stream

Config Commands:
  config check      Validate configuration and checksum
  config lock       Record the configuration checksum
  config show       Print the resolved configuration
  config get <path> Print one value (dot notation)
  config set <path> <value>
                    Change one value (--apply to write)

Job Commands:
  job submit        Submit a shell command for execution
  job get <id>      Show the status of a request (sqlite backend)

General:
  version           Show version information
  help              Show this help message

Without --config, the config file is taken from $KAIROI_CONFIG, ./kairoi.yaml,
$XDG_CONFIG_HOME/kairoi/kairoi.yaml or /etc/kairoi/kairoi.yaml.

Use 'kairoi <noun> help' for resource-specific flags.
`)
}

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return exitError
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return exitOK
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: kairoi system start [--config PATH]")
			fmt.Println("Run the dispatch loop in the foreground until SIGINT or SIGTERM.")
			return exitOK
		}
		return runStart(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: kairoi system watch [--config PATH] [--url URL] [--api-key KEY]")
			fmt.Println("Live view of dispatch stats and request activity from a running API.")
			return exitOK
		}
		return runWatch(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return exitError
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: kairoi system <action>")
	fmt.Fprintln(w, "Actions: start, watch")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: kairoi config <action> [--config PATH]")
	fmt.Fprintln(w, "Actions: check, lock, show, get, set")
}

func printJobNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: kairoi job <action> [flags]")
	fmt.Fprintln(w, "Actions: submit, get")
}
