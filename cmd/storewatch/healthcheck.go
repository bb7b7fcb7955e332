package main

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newHealthcheckCommand() *cobra.Command {
	var apiURL, restartCmd string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe a running daemon and optionally restart it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := &http.Client{Timeout: timeout}
			if err := probe(client, apiURL); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "health check failed: %v\n", err)
				return handleUnhealthy(restartCmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}

	cmd.Flags().StringVar(&apiURL, "api", "http://localhost:8080", "storewatch API URL")
	cmd.Flags().StringVar(&restartCmd, "restart-cmd", "", "command to run if unhealthy")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "health check timeout")
	return cmd
}

func probe(client *http.Client, apiURL string) error {
	url := strings.TrimRight(apiURL, "/") + "/api/v1/health"
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func handleUnhealthy(restartCmd string, cause error) error {
	if restartCmd == "" {
		return &exitError{code: 1, err: cause}
	}

	fmt.Fprintf(os.Stderr, "attempting restart: %s\n", restartCmd)
	c := exec.Command("sh", "-c", restartCmd)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return &exitError{code: 1, err: fmt.Errorf("restart command failed: %w", err)}
	}
	return nil
}
