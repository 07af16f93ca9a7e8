package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"studio-backend/internal/credits"
	"studio-backend/internal/engines"
	"studio-backend/internal/llm"
	openai "studio-backend/internal/llm/openai"
	"studio-backend/internal/shared/config"
	"studio-backend/internal/shared/storage/db"
)

// cli carries what subcommands need. Tests swap the openers.
type cli struct {
	cfg         config.Config
	out         io.Writer
	openDB      func(ctx context.Context) (*sql.DB, error)
	openCredits func(ctx context.Context) (*credits.Service, func(), error)
	enhancer    func() (llm.Enhancer, error)
}

func main() {
	cfg := config.Load()
	c := newCLI(cfg, os.Stdout)
	if err := c.rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCLI(cfg config.Config, out io.Writer) *cli {
	c := &cli{cfg: cfg, out: out}
	c.openDB = func(ctx context.Context) (*sql.DB, error) {
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		return db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
	}
	c.openCredits = func(ctx context.Context) (*credits.Service, func(), error) {
		sqlDB, err := c.openDB(ctx)
		if err != nil {
			return nil, nil, err
		}
		svc := credits.NewPostgresService(credits.NewPGStore(sqlDB, cfg.SignupCredits))
		return svc, func() { _ = sqlDB.Close() }, nil
	}
	c.enhancer = func() (llm.Enhancer, error) {
		return openai.NewClient(cfg.Vendors.OpenAIAPIKey, cfg.Vendors.OpenAIChatModel, cfg.Vendors.OpenAIBaseURL, &http.Client{Timeout: time.Minute})
	}
	return c
}

func (c *cli) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "studioctl",
		Short:         "Studio backend admin CLI",
		SilenceUsage:  true,
	}
	rootCmd.SetOut(c.out)
	rootCmd.SetErr(c.out)

	rootCmd.AddCommand(c.migrateCmd(), c.enginesCmd(), c.creditsCmd(), c.enhanceCmd())
	return rootCmd
}

func (c *cli) migrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}

	run := func(fn func(context.Context, *sql.DB) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			sqlDB, err := c.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer sqlDB.Close()
			return fn(cmd.Context(), sqlDB)
		}
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  run(db.RunMigrations),
	}
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		RunE:  run(db.RollbackMigration),
	}
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print migration status",
		RunE:  run(db.MigrationStatus),
	}
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: run(func(ctx context.Context, sqlDB *sql.DB) error {
			v, err := db.MigrationVersion(ctx, sqlDB)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, v)
			return nil
		}),
	}

	migrateCmd.AddCommand(upCmd, downCmd, statusCmd, versionCmd)
	return migrateCmd
}

func (c *cli) enginesCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "engines",
		Short: "List generation engines, their price and whether they are configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := engines.NewRegistryFromConfig(c.cfg.Vendors, c.cfg.Polling, nil, nil)
			list := registry.List()
			if kind != "" {
				k := engines.Kind(kind)
				if !k.Valid() {
					return fmt.Errorf("unknown kind %q", kind)
				}
				list = registry.ListKind(k)
			}

			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ENGINE\tKIND\tVENDOR\tCREDITS\tCONFIGURED")
			for _, info := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\n", info.ID, info.Kind, info.Vendor, credits.Cost(info.ID), info.Configured)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by kind (image, video, audio)")
	return cmd
}

func (c *cli) creditsCmd() *cobra.Command {
	creditsCmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and adjust credit balances",
	}

	var historyLimit int
	showCmd := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a user's balance and recent ledger entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := c.openCredits(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			acct, err := svc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "user %s: %d credits (%s)\n", acct.UserID, acct.Balance, acct.Plan)

			entries, err := svc.History(cmd.Context(), args[0], historyLimit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%+d\t%d\t%s\t%s\n", e.CreatedAt.Format(time.RFC3339), e.Delta, e.BalanceAfter, e.Reason, e.Reference)
			}
			return tw.Flush()
		},
	}
	showCmd.Flags().IntVar(&historyLimit, "history", 10, "Number of ledger entries to print")

	var reference string
	grantCmd := &cobra.Command{
		Use:   "grant <user-id> <credits>",
		Short: "Grant credits to a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var n int
			if _, err := fmt.Sscanf(args[1], "%d", &n); err != nil || n <= 0 {
				return fmt.Errorf("credits must be a positive integer, got %q", args[1])
			}
			svc, closeFn, err := c.openCredits(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if reference == "" {
				reference = "studioctl:" + time.Now().UTC().Format(time.RFC3339Nano)
			}
			acct, err := svc.Grant(cmd.Context(), args[0], n, credits.ReasonAdminGrant, reference)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "granted %d credits to %s, balance %d\n", n, acct.UserID, acct.Balance)
			return nil
		},
	}
	grantCmd.Flags().StringVar(&reference, "reference", "", "Idempotency reference for the grant")

	creditsCmd.AddCommand(showCmd, grantCmd)
	return creditsCmd
}

func (c *cli) enhanceCmd() *cobra.Command {
	var kind, style string
	cmd := &cobra.Command{
		Use:   "enhance <prompt>",
		Short: "Run the prompt enhancer against the configured model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enhancer, err := c.enhancer()
			if err != nil {
				return err
			}
			out, err := enhancer.Enhance(cmd.Context(), llm.EnhanceInput{
				Prompt: strings.Join(args, " "),
				Kind:   kind,
				Style:  style,
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(c.out)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "image", "Prompt kind (image, video, audio)")
	cmd.Flags().StringVar(&style, "style", "", "Optional style hint")
	return cmd
}
