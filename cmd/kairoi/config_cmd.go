package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chachacholly/kairoi/internal/config"
)

// defaultConfigPath is empty so the config file is discovered.
const defaultConfigPath = ""

const configFlagUsage = "Path to configuration file (default: discovered)"

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return exitError
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return exitOK
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: kairoi config check [--config PATH]")
			fmt.Println("Validate configuration syntax, values and checksum.")
			return exitOK
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: kairoi config lock [--config PATH]")
			fmt.Println("Validate the configuration and record its BLAKE3 checksum next to it.")
			return exitOK
		}
		return runConfigLock(actionArgs)
	case "get":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: kairoi config get <path> [--config PATH]")
			fmt.Println("Print one resolved value, e.g. 'link.sqlite.path'.")
			return exitOK
		}
		return runConfigGet(actionArgs)
	case "set":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: kairoi config set <path> <value> [--config PATH] [--apply]")
			fmt.Println("Change one value. Without --apply the change is validated but not written.")
			return exitOK
		}
		return runConfigSet(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: kairoi config show [--config PATH]")
			fmt.Println("Print the configuration with defaults applied.")
			return exitOK
		}
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return exitError
	}
}

// resolveConfigPath returns path, or the discovered config file when path is empty.
func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return config.Discover()
}

func parseConfigFlag(name string, args []string) (string, bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, configFlagUsage)
	if err := fs.Parse(args); err != nil {
		return "", false
	}
	path, err := resolveConfigPath(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return "", false
	}
	return path, true
}

// splitPositional separates positional arguments from flags so positionals
// may appear before or after them. valueFlags names the flags that consume
// the following argument.
func splitPositional(args []string, valueFlags ...string) (positional, flags []string) {
	takesValue := make(map[string]bool, len(valueFlags))
	for _, f := range valueFlags {
		takesValue["-"+f] = true
		takesValue["--"+f] = true
	}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			positional = append(positional, arg)
			continue
		}
		flags = append(flags, arg)
		if takesValue[arg] && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	return positional, flags
}

func runConfigCheck(args []string) int {
	configPath, ok := parseConfigFlag("check", args)
	if !ok {
		return exitError
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration check FAILED: %v\n", err)
		return exitError
	}

	fmt.Printf("Configuration check PASSED: %s\n", configPath)
	fmt.Printf("  link backend: %s\n", cfg.Link.Backend)
	fmt.Printf("  tick rate:    %d/s\n", cfg.Dispatch.TickRate)
	if cfg.API.Enabled {
		fmt.Printf("  api:          %s\n", cfg.API.Listen)
	}
	if _, err := os.Stat(config.ChecksumPath(configPath)); err != nil {
		fmt.Println("  checksum:     not locked (run 'kairoi config lock')")
	} else {
		fmt.Println("  checksum:     verified")
	}
	return exitOK
}

func runConfigLock(args []string) int {
	configPath, ok := parseConfigFlag("lock", args)
	if !ok {
		return exitError
	}

	// Validate the content directly: the point of locking is to accept a
	// file whose old checksum no longer matches.
	data, err := os.ReadFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
		return exitError
	}
	if _, err := config.Parse(data); err != nil {
		fmt.Fprintf(os.Stderr, "Refusing to lock invalid configuration: %v\n", err)
		return exitError
	}

	hash, err := config.WriteChecksum(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Lock failed: %v\n", err)
		return exitError
	}
	fmt.Printf("Locked %s (blake3:%s)\n", filepath.Base(configPath), hash)
	return exitOK
}

func runConfigGet(args []string) int {
	positional, flags := splitPositional(args, "config")
	if len(positional) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: kairoi config get <path> [--config PATH]")
		return exitError
	}
	configPath, ok := parseConfigFlag("get", flags)
	if !ok {
		return exitError
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return exitError
	}
	redact(cfg)

	value, err := cfg.GetPath(positional[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitError
	}
	switch v := value.(type) {
	case map[string]any, []any:
		data, err := yaml.Marshal(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Encode error: %v\n", err)
			return exitError
		}
		fmt.Print(string(data))
	default:
		fmt.Println(v)
	}
	return exitOK
}

func runConfigSet(args []string) int {
	positional, flags := splitPositional(args, "config")
	if len(positional) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: kairoi config set <path> <value> [--config PATH] [--apply]")
		return exitError
	}

	fs := flag.NewFlagSet("set", flag.ContinueOnError)
	configFlag := fs.String("config", defaultConfigPath, configFlagUsage)
	apply := fs.Bool("apply", false, "Write the change to the config file")
	if err := fs.Parse(flags); err != nil {
		return exitError
	}
	configPath, err := resolveConfigPath(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitError
	}

	if _, err := config.SetPath(configPath, positional[0], positional[1], *apply); err != nil {
		fmt.Fprintf(os.Stderr, "Set failed: %v\n", err)
		return exitError
	}
	if !*apply {
		fmt.Printf("Dry run: %s = %s is valid (use --apply to write)\n", positional[0], positional[1])
		return exitOK
	}

	fmt.Printf("Updated %s: %s = %s\n", filepath.Base(configPath), positional[0], positional[1])
	if _, err := os.Stat(config.ChecksumPath(configPath)); err == nil {
		fmt.Println("Checksum is now stale; run 'kairoi config lock' to accept the change.")
	}
	return exitOK
}

// redact masks secrets before configuration is printed.
func redact(cfg *config.Config) {
	if cfg.API.Auth.APIKey != "" {
		cfg.API.Auth.APIKey = "<redacted>"
	}
	if cfg.Link.Redis.Password != "" {
		cfg.Link.Redis.Password = "<redacted>"
	}
}

func runConfigShow(args []string) int {
	configPath, ok := parseConfigFlag("show", args)
	if !ok {
		return exitError
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return exitError
	}
	redact(cfg)

	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Encode error: %v\n", err)
		return exitError
	}
	fmt.Print(string(data))
	return exitOK
}
