package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cryoetdb/cryoetdb/pkg/secrets"
)

// waitCmd represents the wait command
var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for the secret store or the query API to be ready",
	Long: `Wait for the secret store to be ready by polling its health endpoint.

The number of attempts and the interval come from secret_wait_attempts and
secret_wait_interval. With --server-url the query API status endpoint is
polled instead.

Example:
  cryoetctl wait
  cryoetctl wait --server-url http://localhost:8080 --retries 60`,
	Run: func(cmd *cobra.Command, args []string) {
		serverURL, _ := cmd.Flags().GetString("server-url")
		retries, _ := cmd.Flags().GetInt("retries")

		a := mustApp(cmd)
		if serverURL != "" {
			a.exit(waitForServer(cmd.Context(), serverURL, retries))
		}
		a.exit(waitForSecretStore(cmd.Context(), a))
	},
}

func init() {
	rootCmd.AddCommand(waitCmd)
	waitCmd.Flags().String("server-url", "", "Query API base URL to poll instead of the secret store")
	waitCmd.Flags().IntP("retries", "r", 90, "Number of retries when polling the query API")
}

func waitForSecretStore(ctx context.Context, a *app) error {
	store, err := a.secretStore()
	if err != nil {
		return fmt.Errorf("%w: %v", secrets.ErrSecretStoreUnavailable, err)
	}

	fmt.Println("Waiting for the secret store to be ready...")
	err = secrets.WaitReady(ctx, store, a.cfg.SecretWaitAttempts, a.cfg.SecretWaitIntervalDuration(),
		func(attempt int, err error) {
			fmt.Printf("attempt %d/%d: %v\n", attempt, a.cfg.SecretWaitAttempts, err)
		})
	if err != nil {
		return err
	}
	printOK("Secret store is ready")
	return nil
}

func waitForServer(ctx context.Context, baseURL string, retries int) error {
	client := &http.Client{Timeout: 2 * time.Second}

	fmt.Println("Waiting for the query API to be ready...")

	for i := 0; i < retries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/", nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode < 300 {
				fmt.Println()
				printOK("Query API is ready")
				return nil
			}
		}

		fmt.Print(".")
		select {
		case <-ctx.Done():
			fmt.Println()
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}

	fmt.Println()
	return fmt.Errorf("query API is not ready after %d seconds", retries)
}
