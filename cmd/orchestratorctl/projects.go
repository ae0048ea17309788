package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
)

func handleProjects(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 {
		fmt.Println(`Usage:
  orchestratorctl projects create --id <id> --name <name>
  orchestratorctl projects get <project-id>`)
		return nil
	}

	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("projects create", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		id := fs.String("id", "", "project id")
		name := fs.String("name", "", "project name")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *name == "" {
			return errors.New("name is required")
		}
		payload := map[string]any{"id": *id, "name": *name}
		data, err := client.request(ctx, http.MethodPost, "/v1/projects", payload)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "get":
		if len(args) < 2 {
			return errors.New("project id required")
		}
		data, err := client.request(ctx, http.MethodGet, "/v1/projects/"+args[1], nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	default:
		return fmt.Errorf("unknown projects subcommand %q", args[0])
	}
	return nil
}
