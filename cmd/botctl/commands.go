package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"metaapi-trading-bot/config"
	"metaapi-trading-bot/internal/app"
	"metaapi-trading-bot/internal/auth"
	"metaapi-trading-bot/internal/database"
	"metaapi-trading-bot/internal/vault"
)

var (
	byCommodity bool
	outputFile  string
	bcryptCost  int

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the trading loop and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Serve(ctx, cfg, logger)
		},
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the Postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cfg.DatabaseConfig.Enabled {
				return errors.New("database is disabled, set DB_ENABLED=true")
			}
			_, release, err := app.OpenStore(cmd.Context(), cfg.DatabaseConfig, logger)
			if err != nil {
				return err
			}
			release()
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Print trade statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, release, err := app.OpenStore(cmd.Context(), cfg.DatabaseConfig, logger)
			if err != nil {
				return err
			}
			defer release()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), stats, byCommodity)
			return nil
		},
	}

	cleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "Delete broker error records and duplicate open records",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, release, err := app.OpenStore(cmd.Context(), cfg.DatabaseConfig, logger)
			if err != nil {
				return err
			}
			defer release()

			res, err := store.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d error records and %d duplicate open records\n",
				res.ErrorRecords, res.DuplicateRecords)
			return nil
		},
	}

	sampleConfigCmd = &cobra.Command{
		Use:   "sample-config",
		Short: "Write a sample config file",
		// The file being written need not exist yet
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.GenerateSampleConfig(outputFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sample configuration written to %s\n", outputFile)
			return nil
		},
	}

	hashPasswordCmd = &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its bcrypt hash for AUTH_OPERATOR_PASS_HASH",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readLine(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if password == "" {
				return errors.New("empty password")
			}
			hash, err := auth.HashPassword(password, bcryptCost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}

	credentialsCmd = &cobra.Command{
		Use:   "store-credentials",
		Short: "Copy the configured MetaAPI token and account ids into Vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			return storeCredentials(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
)

func init() {
	statsCmd.Flags().BoolVar(&byCommodity, "by-commodity", false, "break closed trades down per commodity")
	sampleConfigCmd.Flags().StringVarP(&outputFile, "output", "o", "config.sample.json", "file to write")
	hashPasswordCmd.Flags().IntVar(&bcryptCost, "cost", auth.DefaultBcryptCost, "bcrypt cost factor")
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func printStats(w io.Writer, stats *database.TradeStats, perCommodity bool) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Total trades\t%d\n", stats.TotalTrades)
	fmt.Fprintf(tw, "Open positions\t%d\n", stats.OpenPositions)
	fmt.Fprintf(tw, "Closed positions\t%d\n", stats.ClosedPositions)
	fmt.Fprintf(tw, "Winners / losers\t%d / %d\n", stats.WinningTrades, stats.LosingTrades)
	fmt.Fprintf(tw, "Win rate\t%.1f%%\n", stats.WinRate)
	fmt.Fprintf(tw, "Total P/L\t%.2f\n", stats.TotalProfitLoss)

	if perCommodity && len(stats.ByCommodity) > 0 {
		ids := make([]string, 0, len(stats.ByCommodity))
		for id := range stats.ByCommodity {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "COMMODITY\tTRADES\tWINNERS\tP/L")
		for _, id := range ids {
			c := stats.ByCommodity[id]
			fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\n", id, c.Trades, c.Winners, c.ProfitLoss)
		}
	}
	tw.Flush()
}

func storeCredentials(ctx context.Context, w io.Writer, cfg *config.Config) error {
	if !cfg.VaultConfig.Enabled {
		return errors.New("vault is disabled, set VAULT_ENABLED=true")
	}
	client, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		return err
	}

	creds := vault.Credentials{Token: cfg.MetaAPIConfig.Token, Accounts: make(map[string]string)}
	for _, acc := range cfg.MetaAPIConfig.Accounts {
		if acc.AccountID != "" {
			creds.Accounts[acc.Name] = acc.AccountID
		}
	}
	if creds.Token == "" || len(creds.Accounts) == 0 {
		return errors.New("no MetaAPI token or account ids configured")
	}

	if err := client.StoreCredentials(ctx, creds); err != nil {
		return err
	}
	fmt.Fprintf(w, "Stored MetaAPI credentials for %d accounts\n", len(creds.Accounts))
	return nil
}
