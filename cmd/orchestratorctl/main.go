// Command orchestratorctl is the operator CLI for orchestratord: agent
// and task inspection, manual task execution, and job polling over the
// HTTP surface. Modeled on the teacher's cmd/slctl's hand-rolled
// flag.NewFlagSet plus HTTP client dispatch style.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/taskforge/orchestrator/internal/version"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	defaultAddr := getenv("ORCHESTRATOR_ADDR", "http://localhost:8080")
	defaultToken := os.Getenv("ORCHESTRATOR_TOKEN")

	root := flag.NewFlagSet("orchestratorctl", flag.ContinueOnError)
	root.SetOutput(io.Discard)
	addrFlag := root.String("addr", defaultAddr, "orchestratord base URL (env ORCHESTRATOR_ADDR)")
	tokenFlag := root.String("token", defaultToken, "bearer token (env ORCHESTRATOR_TOKEN)")
	timeoutFlag := root.Duration("timeout", 15*time.Second, "HTTP request timeout")
	showVersion := root.Bool("version", false, "print orchestratorctl build information and exit")
	if err := root.Parse(args); err != nil {
		return usageError(err)
	}

	remaining := root.Args()
	if *showVersion {
		fmt.Println(version.FullVersion())
		return nil
	}
	if len(remaining) == 0 {
		return usageError(errors.New("no command specified"))
	}

	client := &apiClient{
		baseURL: strings.TrimRight(*addrFlag, "/"),
		token:   strings.TrimSpace(*tokenFlag),
		http:    &http.Client{Timeout: *timeoutFlag},
	}

	switch remaining[0] {
	case "agents":
		return handleAgents(ctx, client, remaining[1:])
	case "projects":
		return handleProjects(ctx, client, remaining[1:])
	case "tasks":
		return handleTasks(ctx, client, remaining[1:])
	case "jobs":
		return handleJobs(ctx, client, remaining[1:])
	case "version":
		fmt.Println(version.FullVersion())
		return nil
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		return usageError(fmt.Errorf("unknown command %q", remaining[0]))
	}
}

func usageError(err error) error {
	printRootUsage()
	return err
}

func printRootUsage() {
	fmt.Println(`orchestratorctl - orchestrator operator CLI

Usage:
  orchestratorctl [global flags] <command> [subcommand] [flags]

Global Flags:
  --addr       orchestratord base URL (env ORCHESTRATOR_ADDR, default http://localhost:8080)
  --token      bearer token (env ORCHESTRATOR_TOKEN)
  --timeout    HTTP timeout (default 15s)
  --version    print build information and exit

Commands:
  agents       register, list, and inspect agents
  projects     create and inspect projects
  tasks        create, inspect, execute, and cancel tasks
  jobs         poll job status`)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
