package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chachacholly/kairoi/internal/config"
	"github.com/chachacholly/kairoi/internal/execution"
	"github.com/chachacholly/kairoi/internal/redislink"
	"github.com/chachacholly/kairoi/internal/storage"
	"github.com/chachacholly/kairoi/internal/store"
)

func runJobNoun(args []string) int {
	if len(args) < 1 {
		printJobNounHelp(os.Stderr)
		return exitError
	}
	if isHelpToken(args[0]) {
		printJobNounHelp(os.Stdout)
		return exitOK
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "submit":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: kairoi job submit --job-id ID --command CMD [--config PATH]")
			fmt.Println("Submit a shell command through the configured link backend.")
			return exitOK
		}
		return runJobSubmit(actionArgs)
	case "get":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: kairoi job get <request_id> [--config PATH]")
			fmt.Println("Show a stored request as JSON (sqlite backend).")
			return exitOK
		}
		return runJobGet(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown job action: %s\n", action)
		return exitError
	}
}

func runJobSubmit(args []string) int {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	configFlag := fs.String("config", defaultConfigPath, configFlagUsage)
	jobID := fs.String("job-id", "", "Job identifier the request belongs to")
	command := fs.String("command", "", "Shell command to run")
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if strings.TrimSpace(*jobID) == "" || strings.TrimSpace(*command) == "" {
		fmt.Fprintln(os.Stderr, "Usage: kairoi job submit --job-id ID --command CMD [--config PATH]")
		return exitError
	}

	configPath, err := resolveConfigPath(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitError
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitError
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	spec := execution.Shell{Command: *command}

	switch cfg.Link.Backend {
	case config.BackendRedis:
		client, err := redislink.NewClient(ctx, redisConfig(cfg))
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return exitError
		}
		defer client.Close()

		req := execution.NewRequest(*jobID, spec)
		entry, err := redislink.NewPublisher(client, redisConfig(cfg)).Publish(ctx, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Submit failed: %v\n", err)
			return exitError
		}
		fmt.Printf("%s (stream entry %s)\n", req.ID, entry)
	default:
		st, closeDB, err := openStore(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return exitError
		}
		defer closeDB()

		id, err := st.Submit(ctx, *jobID, spec)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Submit failed: %v\n", err)
			return exitError
		}
		fmt.Println(id)
	}
	return exitOK
}

func runJobGet(args []string) int {
	positional, flags := splitPositional(args, "config")
	if len(positional) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: kairoi job get <request_id> [--config PATH]")
		return exitError
	}
	id, err := uuid.Parse(positional[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid request id %q: %v\n", positional[0], err)
		return exitError
	}

	configPath, ok := parseConfigFlag("get", flags)
	if !ok {
		return exitError
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitError
	}
	if cfg.Link.Backend != config.BackendSQLite {
		fmt.Fprintln(os.Stderr, "job get requires the sqlite backend")
		return exitError
	}

	ctx := context.Background()
	st, closeDB, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitError
	}
	defer closeDB()

	rec, err := st.Get(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitError
	}

	out := map[string]any{
		"id":         rec.ID,
		"job_id":     rec.JobID,
		"status":     rec.Status,
		"created_at": rec.CreatedAt,
	}
	if rec.Runner != nil {
		out["runner"], _ = execution.MarshalRunnerSpec(rec.Runner)
	}
	if rec.Result != nil {
		out["result"] = rec.Result.String()
	}
	if rec.Reason != nil {
		out["reason"] = *rec.Reason
	}
	if rec.CompletedAt != nil {
		out["completed_at"] = rec.CompletedAt
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(data))
	return exitOK
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, func(), error) {
	db, err := storage.OpenSQLite(ctx, cfg.Link.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store.New(db), func() { _ = db.Close() }, nil
}
