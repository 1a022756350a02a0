package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fertility-cds-server/internal/api"
	"github.com/fertility-cds-server/internal/config"
	"github.com/fertility-cds-server/internal/database"
	"github.com/fertility-cds-server/internal/domain"
	"github.com/fertility-cds-server/internal/mcp"
	"github.com/fertility-cds-server/internal/protocol"
	"github.com/fertility-cds-server/internal/repository"
	"github.com/fertility-cds-server/internal/service"
	"github.com/fertility-cds-server/internal/setup"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg := manager.GetConfig()
			logger := config.NewLogger(cfg.Logging)
			if used := manager.ConfigFileUsed(); used != "" {
				logger.WithField("config_file", used).Info("Configuration loaded")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			server := api.NewServer(cfg, a.engine, a.sessions, a.store, logger)
			if err := server.Start(ctx); err != nil {
				return err
			}
			logger.Info("Server stopped")
			return nil
		},
	}
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the engine as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg := manager.GetConfig()

			// stdout carries protocol frames.
			cfg.Logging.Output = "stderr"
			logger := config.NewLogger(cfg.Logging)

			engine, err := loadEngine(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return mcp.NewServer(engine, cfg.MCP, logger).Run(ctx)
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run PostgreSQL schema migrations",
	}
	cmd.PersistentFlags().String("dir", "", "Migrations directory (default: migrations built into the binary)")

	run := func(name string, fn func(context.Context, *database.MigrationRunner) error) *cobra.Command {
		return &cobra.Command{
			Use:   name,
			Short: fmt.Sprintf("Migrate %s", name),
			RunE: func(cmd *cobra.Command, args []string) error {
				manager, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				cfg := manager.GetConfig()
				if cfg.Storage.PostgresURL == "" {
					return fmt.Errorf("storage.postgres_url is required for migrations")
				}

				dir, _ := cmd.Flags().GetString("dir")
				if dir == "" {
					dir = cfg.Storage.MigrationsPath
				}

				logger := config.NewLogger(cfg.Logging)
				runner, err := database.NewMigrationRunner(cfg.Storage.PostgresURL, dir, logger)
				if err != nil {
					return err
				}
				defer runner.Close()

				if err := fn(cmd.Context(), runner); err != nil {
					return err
				}

				version, dirty, err := runner.Version()
				if err != nil {
					fmt.Fprintln(cmd.OutOrStdout(), "No migrations applied.")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Schema version %d (dirty: %t)\n", version, dirty)
				return nil
			},
		}
	}

	cmd.AddCommand(run("up", func(ctx context.Context, r *database.MigrationRunner) error { return r.Up(ctx) }))
	cmd.AddCommand(run("down", func(ctx context.Context, r *database.MigrationRunner) error { return r.Down(ctx) }))
	cmd.AddCommand(run("version", func(context.Context, *database.MigrationRunner) error { return nil }))

	return cmd
}

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify an observation JSON file and print the findings",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			data, err := readInput(cmd, path)
			if err != nil {
				return err
			}

			var obs domain.Observation
			if err := json.Unmarshal(data, &obs); err != nil {
				return fmt.Errorf("invalid observation JSON: %w", err)
			}
			if err := obs.Validate(); err != nil {
				return err
			}

			logger := config.NewLogger(domain.LoggingConfig{Level: "warn", Output: "stderr"})
			findings := service.NewThresholdClassifier(logger).Classify(obs)
			bmi, band := service.ObservationBMI(obs)

			return writeJSON(cmd.OutOrStdout(), api.ClassifyResponse{
				Findings:    findings.Sorted(),
				MaxSeverity: findings.MaxSeverity(),
				BMI:         bmi,
				BMIBand:     band,
			})
		},
	}
	cmd.Flags().StringP("file", "f", "-", "Observation JSON file, - for stdin")
	return cmd
}

func protocolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "protocol",
		Short: "Inspect clinical protocol bundles",
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a protocol bundle file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			strict, _ := cmd.Flags().GetBool("strict")

			bundle, err := protocol.Load(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			problems := bundle.Problems()
			for _, p := range problems {
				fmt.Fprintf(out, "problem: %s\n", p)
			}
			if err := bundle.Validate(strict); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s@%s: %d nodes, %d recommendation keys, %d catalog entries, %d problem(s)\n",
				bundle.Name, bundle.Version, len(bundle.Graph.Nodes), len(bundle.Recommendations), len(bundle.Catalog), len(problems))
			return nil
		},
	}
	validateCmd.Flags().StringP("file", "f", "", "Protocol bundle YAML (default: built-in protocol)")
	validateCmd.Flags().Bool("strict", true, "Treat every problem as fatal")
	cmd.AddCommand(validateCmd)

	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the built-in protocol as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cmd.OutOrStdout().Write(protocol.CanonicalYAML())
			return err
		},
	}
	cmd.AddCommand(dumpCmd)

	return cmd
}

func recordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Export or import finalized prescriptions",
	}

	withStore := func(cmd *cobra.Command, fn func(context.Context, repository.Store) error) error {
		manager, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg := manager.GetConfig()
		cfg.Logging.Output = "stderr"
		logger := config.NewLogger(cfg.Logging)

		store, err := repository.NewStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		return fn(cmd.Context(), store)
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write every record as a JSON document",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("out")
			return withStore(cmd, func(ctx context.Context, store repository.Store) error {
				w := cmd.OutOrStdout()
				if path != "-" {
					f, err := os.Create(path)
					if err != nil {
						return fmt.Errorf("failed to create export file: %w", err)
					}
					defer f.Close()
					w = f
				}
				return repository.ExportJSON(ctx, store, w)
			})
		},
	}
	exportCmd.Flags().StringP("out", "o", "-", "Output file, - for stdout")
	cmd.AddCommand(exportCmd)

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Load records from a JSON export, skipping existing ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("in")
			data, err := readInput(cmd, path)
			if err != nil {
				return err
			}
			return withStore(cmd, func(ctx context.Context, store repository.Store) error {
				imported, skipped, err := repository.ImportJSON(ctx, store, bytes.NewReader(data))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d record(s), skipped %d.\n", imported, skipped)
				return nil
			})
		},
	}
	importCmd.Flags().StringP("in", "i", "-", "Export file, - for stdin")
	cmd.AddCommand(importCmd)

	return cmd
}

func setupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the MCP server with a desktop MCP client",
	}
	cmd.PersistentFlags().String("client-config", "", "Client config file (default: the desktop client's standard location)")

	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Add or update the server entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			clientConfig, _ := cmd.Flags().GetString("client-config")
			binary, _ := cmd.Flags().GetString("binary")
			serverConfig, _ := cmd.Flags().GetString("config")

			path, err := setup.Register(setup.Options{
				ConfigPath: clientConfig,
				BinaryPath: binary,
				ConfigFile: serverConfig,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s in %s\n", setup.ServerName, path)
			return nil
		},
	}
	registerCmd.Flags().String("binary", "", "Server binary (default: this executable or cds-server on PATH)")
	cmd.AddCommand(registerCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the registration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			clientConfig, _ := cmd.Flags().GetString("client-config")
			status, err := setup.GetStatus(clientConfig)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Client config: %s\n", status.ConfigPath)
			fmt.Fprintf(out, "Registered:    %t\n", status.Registered)
			if status.Command != "" {
				fmt.Fprintf(out, "Command:       %s\n", status.Command)
			}
			for _, issue := range status.Issues {
				fmt.Fprintf(out, "  - %s\n", issue)
			}
			return nil
		},
	}
	cmd.AddCommand(statusCmd)

	unregisterCmd := &cobra.Command{
		Use:   "unregister",
		Short: "Remove the server entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			clientConfig, _ := cmd.Flags().GetString("client-config")
			removed, err := setup.Unregister(clientConfig)
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", setup.ServerName)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s was not registered\n", setup.ServerName)
			}
			return nil
		},
	}
	cmd.AddCommand(unregisterCmd)

	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
