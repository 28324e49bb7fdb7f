package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	skijump "github.com/kubikal7/ski-jumping-management"
	"github.com/kubikal7/ski-jumping-management/internal/auth"
	"github.com/kubikal7/ski-jumping-management/internal/config"
	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/season"
	"github.com/kubikal7/ski-jumping-management/internal/storage"
	"github.com/kubikal7/ski-jumping-management/migrations"
)

func newRootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "skijump",
		Short:         "Ski jumping roster, results and recommendation server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCmd(logger),
		newMigrateCmd(logger),
		newGenkeyCmd(),
		newSeasonCmd(),
		newPartitionsCmd(logger),
	)
	return root
}

func newServeCmd(logger *slog.Logger) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, MCP and live results server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := []skijump.Option{skijump.WithLogger(logger), skijump.WithVersion(version)}
			if port != 0 {
				opts = append(opts, skijump.WithPort(port))
			}
			app, err := skijump.New(cmd.Context(), opts...)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides SKIJUMP_PORT)")
	return cmd
}

// openDB connects with the loaded configuration, without a notify
// connection.
func openDB(ctx context.Context, logger *slog.Logger) (*storage.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return storage.New(ctx, cfg.DatabaseURL, "", logger)
}

func newMigrateCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDB(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer db.Close(context.Background())
			if err := db.RunMigrations(cmd.Context(), migrations.FS); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newGenkeyCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "genkey",
		Short: "Write a new Ed25519 JWT signing key pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			priv, pub, err := auth.WriteKeyPair(out)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "SKIJUMP_JWT_PRIVATE_KEY=%s\n", priv)
			fmt.Fprintf(w, "SKIJUMP_JWT_PUBLIC_KEY=%s\n", pub)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "keys", "directory for private.pem and public.pem")
	return cmd
}

func newSeasonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "season DATE",
		Short: "Print the season a YYYY-MM-DD date falls in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := model.ParseDate(args[0])
			if err != nil {
				return err
			}
			return printSeason(cmd.OutOrStdout(), season.Key(d.Time))
		},
	}
}

func printSeason(w io.Writer, key string) error {
	start, err := season.Start(key)
	if err != nil {
		return err
	}
	end, err := season.End(key)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "season:  %s\n", key)
	fmt.Fprintf(w, "first:   %s\n", start.Format(time.DateOnly))
	fmt.Fprintf(w, "last:    %s\n", end.AddDate(0, 0, -1).Format(time.DateOnly))
	fmt.Fprintf(w, "results: %s\n", storage.PartitionName(storage.TableResults, key))
	return nil
}

func newPartitionsCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "partitions",
		Short: "Inspect and provision season partitions",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "ensure TABLE SEASON",
			Short: "Create the partition of TABLE for SEASON (YYYY/YYYY+1) if missing",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				table, key := args[0], args[1]
				if err := season.Validate(key); err != nil {
					return err
				}
				db, err := openDB(cmd.Context(), logger)
				if err != nil {
					return err
				}
				defer db.Close(context.Background())
				if err := db.EnsurePartition(cmd.Context(), table, key); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), storage.PartitionName(table, key))
				return nil
			},
		},
		&cobra.Command{
			Use:   "list TABLE",
			Short: "List the seasons provisioned for TABLE",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				db, err := openDB(cmd.Context(), logger)
				if err != nil {
					return err
				}
				defer db.Close(context.Background())
				seasons, err := db.ListPartitions(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				for _, key := range seasons {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", key, storage.PartitionName(args[0], key))
				}
				return nil
			},
		},
	)
	return cmd
}
