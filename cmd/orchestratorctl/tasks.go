package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
)

func handleTasks(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 {
		fmt.Println(`Usage:
  orchestratorctl tasks create --id <id> --title <title> [--project <id>]
  orchestratorctl tasks get <task-id>
  orchestratorctl tasks execute <task-id> [--force] [--timeout-sec 300] [--strategy <name>]
  orchestratorctl tasks cancel <task-id>`)
		return nil
	}

	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("tasks create", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		id := fs.String("id", "", "task id")
		title := fs.String("title", "", "task title")
		projectID := fs.String("project", "", "owning project id")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *title == "" {
			return errors.New("title is required")
		}
		payload := map[string]any{"id": *id, "title": *title, "project_id": *projectID}
		data, err := client.request(ctx, http.MethodPost, "/v1/tasks", payload)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "get":
		if len(args) < 2 {
			return errors.New("task id required")
		}
		data, err := client.request(ctx, http.MethodGet, "/v1/tasks/"+args[1], nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "execute":
		if len(args) < 2 {
			return errors.New("task id required")
		}
		fs := flag.NewFlagSet("tasks execute", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		force := fs.Bool("force", false, "skip dependency check")
		timeoutSec := fs.Int("timeout-sec", 0, "execution timeout in seconds")
		strategy := fs.String("strategy", "", "assignment strategy override")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		payload := map[string]any{
			"force":           *force,
			"timeout_seconds": *timeoutSec,
			"strategy":        *strategy,
		}
		data, err := client.request(ctx, http.MethodPost, "/v1/tasks/"+args[1]+"/execute", payload)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "cancel":
		if len(args) < 2 {
			return errors.New("task id required")
		}
		_, err := client.request(ctx, http.MethodPost, "/v1/tasks/"+args[1]+"/cancel", nil)
		return err
	default:
		return fmt.Errorf("unknown tasks subcommand %q", args[0])
	}
	return nil
}
