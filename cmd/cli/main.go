// Command cli is a terminal client for the osusume API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const defaultBaseURL = "http://localhost:8080"

var (
	flagAPI       string
	flagTokenPath string
	flagJSON      bool
)

var rootCmd = &cobra.Command{
	Use:          "osusume",
	Short:        "Browse the anime catalog and get recommendations",
	SilenceUsage: true,
	Long: `osusume talks to a running api-server. Start a session, select titles
you like, and the server ranks similar titles for you.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagAPI, "api", envOr("OSUSUME_API", defaultBaseURL), "API base URL")
	rootCmd.PersistentFlags().StringVar(&flagTokenPath, "token", defaultTokenPath(), "session token file")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "print raw JSON")
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
