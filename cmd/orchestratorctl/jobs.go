package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

func handleJobs(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 || args[0] != "get" {
		fmt.Println(`Usage:
  orchestratorctl jobs get <job-id>`)
		if len(args) == 0 {
			return nil
		}
		return fmt.Errorf("unknown jobs subcommand %q", args[0])
	}
	if len(args) < 2 {
		return errors.New("job id required")
	}
	data, err := client.request(ctx, http.MethodGet, "/v1/jobs/"+args[1], nil)
	if err != nil {
		return err
	}
	prettyPrint(data)
	return nil
}
