package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/nlquery/internal/config"
	"github.com/ehr/nlquery/internal/domain/nlquery"
	"github.com/ehr/nlquery/internal/platform/db"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "nlq-server",
		Short:        "Clinical question to FHIR search compiler",
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(compileCmd())
	root.AddCommand(vocabCmd())
	root.AddCommand(migrateCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// loadConfig loads and validates configuration for the one-shot commands.
// They log errors only, to stderr.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel).With().Timestamp().Logger()
	return cfg, logger, nil
}

func compileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <question>",
		Short: "Compile a clinical question and print the result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			explain, _ := cmd.Flags().GetBool("explain")

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			return runCompile(ctx, cmd.OutOrStdout(), a.svc, strings.Join(args, " "), explain)
		},
	}
	cmd.Flags().Bool("explain", false, "Include the recognized entities and parsed criteria")
	return cmd
}

func runCompile(ctx context.Context, out io.Writer, svc *nlquery.Service, text string, explain bool) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	if explain {
		result, parsed := svc.Explain(ctx, text)
		return enc.Encode(map[string]interface{}{"result": result, "parsed": parsed})
	}
	return enc.Encode(svc.Compile(ctx, text))
}

func vocabCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Inspect and manage the condition vocabulary",
	}

	// vocab check
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load and validate the configured vocabulary source",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			v := a.store.Current()
			fmt.Fprintf(cmd.OutOrStdout(), "Vocabulary source %s is valid: %d condition(s), longest phrase %d word(s).\n",
				a.store.SourceName(), v.Len(), v.MaxPhraseWords())
			return nil
		},
	})

	// vocab export
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Print the vocabulary as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			builtin, _ := cmd.Flags().GetBool("builtin")

			entries := nlquery.BuiltinEntries()
			if !builtin {
				cfg, logger, err := loadConfig()
				if err != nil {
					return err
				}
				a, err := newApp(cmd.Context(), cfg, logger)
				if err != nil {
					return err
				}
				defer a.close()
				entries = a.store.Current().Entries()
			}
			return writeVocabulary(cmd.OutOrStdout(), entries)
		},
	}
	exportCmd.Flags().Bool("builtin", false, "Export the compiled-in table instead of the configured source")
	cmd.AddCommand(exportCmd)

	// vocab seed
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Write vocabulary entries to the condition_vocabulary table",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}

			var source nlquery.Source = nlquery.BuiltinSource{}
			if file != "" {
				source = nlquery.FileSource{Path: file}
			}

			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := seedVocabulary(ctx, source, nlquery.NewVocabularyRepoPG(pool))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d condition(s) from %s.\n", n, source.Name())
			return nil
		},
	}
	seedCmd.Flags().String("file", "", "YAML vocabulary file to seed instead of the built-in table")
	cmd.AddCommand(seedCmd)

	return cmd
}

func writeVocabulary(out io.Writer, entries []nlquery.ConditionEntry) error {
	data, err := nlquery.MarshalVocabularyYAML(entries)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

// seedVocabulary validates the source as a whole before writing any row.
func seedVocabulary(ctx context.Context, source nlquery.Source, repo nlquery.VocabularyRepository) (int, error) {
	entries, err := source.Load(ctx)
	if err != nil {
		return 0, err
	}
	v, err := nlquery.NewVocabulary(entries)
	if err != nil {
		return 0, fmt.Errorf("refusing to seed invalid vocabulary: %w", err)
	}
	for _, e := range v.Entries() {
		if err := repo.Upsert(ctx, e); err != nil {
			return 0, err
		}
	}
	return v.Len(), nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run vocabulary schema migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			migrator, closeFn, err := openMigrator(cmd.Context(), dir)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to a migrations directory (defaults to the bundled migrations)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			migrator, closeFn, err := openMigrator(cmd.Context(), dir)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to a migrations directory (defaults to the bundled migrations)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func migrationsFS(dir string) fs.FS {
	if dir == "" {
		return db.Migrations()
	}
	return os.DirFS(dir)
}

func openMigrator(ctx context.Context, dir string) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrationsFS(dir)), pool.Close, nil
}

func printMigrationStatus(out io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(out, "%-10s %-45s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(out, "---------- --------------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-45s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
