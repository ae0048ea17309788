package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
)

func handleAgents(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 {
		fmt.Println(`Usage:
  orchestratorctl agents list
  orchestratorctl agents get <agent-id>
  orchestratorctl agents register --id <id> --name <name> [--max-concurrent 2]
  orchestratorctl agents heartbeat <agent-id>`)
		return nil
	}

	switch args[0] {
	case "list":
		data, err := client.request(ctx, http.MethodGet, "/v1/agents", nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "get":
		if len(args) < 2 {
			return errors.New("agent id required")
		}
		data, err := client.request(ctx, http.MethodGet, "/v1/agents/"+args[1], nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "register":
		fs := flag.NewFlagSet("agents register", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		id := fs.String("id", "", "agent id")
		name := fs.String("name", "", "agent display name")
		maxConcurrent := fs.Int("max-concurrent", 1, "max concurrent tasks")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		payload := map[string]any{
			"id":   *id,
			"name": *name,
			"config": map[string]any{
				"max_concurrent": *maxConcurrent,
			},
		}
		data, err := client.request(ctx, http.MethodPost, "/v1/agents", payload)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "heartbeat":
		if len(args) < 2 {
			return errors.New("agent id required")
		}
		_, err := client.request(ctx, http.MethodPost, "/v1/agents/"+args[1]+"/heartbeat", nil)
		return err
	default:
		return fmt.Errorf("unknown agents subcommand %q", args[0])
	}
	return nil
}
