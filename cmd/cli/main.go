package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/iho/carbonledger/internal/domain"
	"github.com/iho/carbonledger/internal/infrastructure/auth"
	"github.com/iho/carbonledger/internal/infrastructure/postgres"
)

// clientOptions are the persistent flags shared by the API commands.
type clientOptions struct {
	baseURL  string
	timeout  time.Duration
	token    string
	callerID string
	role     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &clientOptions{}

	rootCmd := &cobra.Command{
		Use:           "carbonledger-cli",
		Short:         "CarbonLedger CLI tool",
		Long:          `A command line interface for operating the CarbonLedger API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "url", envOr("CARBONLEDGER_URL", "http://localhost:8080"), "Base URL of the CarbonLedger API")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("CARBONLEDGER_TOKEN"), "Bearer token")
	rootCmd.PersistentFlags().StringVar(&opts.callerID, "caller", "", "Caller id sent as X-Caller-ID when no token is set")
	rootCmd.PersistentFlags().StringVar(&opts.role, "role", "", "Caller role sent as X-Caller-Role when no token is set")

	rootCmd.AddCommand(lotCmd(opts), marketCmd(opts), sweepCmd(opts), tokenCmd(), migrateCmd())
	return rootCmd
}

func lotCmd(opts *clientOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lot",
		Short: "Credit lot operations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <lot-id>",
		Short: "Show a credit lot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd.OutOrStdout(), http.MethodGet, "/api/v1/lots/"+url.PathEscape(args[0])+"/")
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "conservation <lot-id>",
		Short: "Check amount conservation across a lot's lineage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd.OutOrStdout(), http.MethodGet, "/api/v1/lots/"+url.PathEscape(args[0])+"/conservation")
		},
	})

	var days int
	expiring := &cobra.Command{
		Use:   "expiring",
		Short: "List lots expiring soon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd.OutOrStdout(), http.MethodGet, fmt.Sprintf("/api/v1/lots/expiring?days_ahead=%d", days))
		},
	}
	expiring.Flags().IntVar(&days, "days", 30, "Days ahead")
	cmd.AddCommand(expiring)

	return cmd
}

func marketCmd(opts *clientOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "market",
		Short: "Marketplace operations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show marketplace statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd.OutOrStdout(), http.MethodGet, "/api/v1/market/stats")
		},
	})

	return cmd
}

func sweepCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Settle stuck splits and expire lots now (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd.OutOrStdout(), http.MethodPost, "/api/v1/admin/sweep")
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		secret string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <caller-id>",
		Short: "Sign a bearer token for a caller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret or JWT_SECRET is required")
			}
			r := domain.Role(strings.ToLower(role))
			if !r.IsValid() {
				return fmt.Errorf("invalid role %q", role)
			}
			token, err := auth.NewJWTManager(secret, ttl).Generate(domain.Caller{ID: args[0], Role: r})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "Signing secret")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleTrader), "Caller role")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func migrateCmd() *cobra.Command {
	var (
		databaseURL string
		path        string
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL URL")
	cmd.PersistentFlags().StringVar(&path, "path", envOr("MIGRATIONS_PATH", "migrations"), "Migrations directory")

	migrator := func() (*postgres.Migrator, error) {
		if databaseURL == "" {
			return nil, fmt.Errorf("--database-url or DATABASE_URL is required")
		}
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		return postgres.NewMigrator(databaseURL, path, logger), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			return m.Up()
		},
	}, &cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			return m.Down()
		},
	})

	return cmd
}

// call sends a request to the API and pretty-prints the JSON response.
func (o *clientOptions) call(out io.Writer, method, path string) error {
	req, err := http.NewRequest(method, strings.TrimRight(o.baseURL, "/")+path, nil)
	if err != nil {
		return err
	}
	switch {
	case o.token != "":
		req.Header.Set("Authorization", "Bearer "+o.token)
	case o.callerID != "":
		req.Header.Set("X-Caller-ID", o.callerID)
		if o.role != "" {
			req.Header.Set("X-Caller-Role", o.role)
		}
	}

	client := &http.Client{Timeout: o.timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, truncate(strings.TrimSpace(string(body)), 512))
	}

	var result any
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return printJSON(out, result)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
