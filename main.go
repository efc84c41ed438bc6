package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"homeschool-api/core/database"
	"homeschool-api/core/logger"
	"homeschool-api/core/server"
	"homeschool-api/modules/calendar/dto"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "homeschool-api",
	Short:         "Work calendar sync and lesson conflict detection",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), server.Serve)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process queued syncs and run the periodic scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), server.RunWorker)
	},
}

var (
	syncConnectionID   string
	syncOrganizationID string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync one connection or every enabled connection of an organization",
	Long: `Run a sync in the foreground and print the results as JSON.

Exactly one of --connection or --organization is required.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		connID, orgID, err := parseSyncTarget()
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(ctx context.Context, app *server.App) error {
			results, err := server.RunSync(ctx, app, connID, orgID)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(results, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if failed := dto.NewSyncAllResponse(results).Failed; failed > 0 {
				return fmt.Errorf("%d of %d syncs failed", failed, len(results))
			}
			return nil
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, app *server.App) error {
			applied, err := database.Migrate(ctx, app.DB)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
			return nil
		})
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncConnectionID, "connection", "", "connection id")
	syncCmd.Flags().StringVar(&syncOrganizationID, "organization", "", "organization id")
	syncCmd.MarkFlagsMutuallyExclusive("connection", "organization")
	syncCmd.MarkFlagsOneRequired("connection", "organization")

	rootCmd.AddCommand(serveCmd, workerCmd, syncCmd, migrateCmd)
}

func parseSyncTarget() (uuid.UUID, uuid.UUID, error) {
	if syncConnectionID != "" {
		id, err := uuid.Parse(syncConnectionID)
		if err != nil {
			return uuid.Nil, uuid.Nil, fmt.Errorf("invalid --connection: %w", err)
		}
		return id, uuid.Nil, nil
	}
	id, err := uuid.Parse(syncOrganizationID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid --organization: %w", err)
	}
	return uuid.Nil, id, nil
}

func withApp(ctx context.Context, run func(context.Context, *server.App) error) error {
	app, err := server.Bootstrap(ctx)
	if err != nil {
		return err
	}
	defer app.Close()
	return run(ctx, app)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("Main:Execute:Error", "error", err)
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
