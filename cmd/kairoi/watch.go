package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/chachacholly/kairoi/internal/config"
	"github.com/chachacholly/kairoi/internal/tui/watch"
)

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	configFlag := fs.String("config", defaultConfigPath, configFlagUsage)
	apiURL := fs.String("url", "", "API base URL (default: from api.listen)")
	apiKey := fs.String("api-key", "", "API key (default: from api.auth.api_key)")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	url, key, err := watchTarget(*configFlag, *apiURL, *apiKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitError
	}

	if err := watch.Run(url, key); err != nil {
		fmt.Fprintf(os.Stderr, "watch failed: %v\n", err)
		return exitError
	}
	return exitOK
}

// watchTarget fills the URL and key the flags left empty from the config.
func watchTarget(configFlag, apiURL, apiKey string) (string, string, error) {
	if apiURL != "" && apiKey != "" {
		return apiURL, apiKey, nil
	}

	configPath, err := resolveConfigPath(configFlag)
	if err != nil {
		return "", "", err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.API.Enabled && apiURL == "" {
		return "", "", fmt.Errorf("api is not enabled in %s; pass --url", configPath)
	}

	if apiURL == "" {
		host := cfg.API.Listen
		if strings.HasPrefix(host, ":") {
			host = "127.0.0.1" + host
		}
		apiURL = "http://" + host
	}
	if apiKey == "" {
		apiKey = cfg.API.Auth.APIKey
	}
	return apiURL, apiKey, nil
}
