// file: cmd/diagnostics.go
// version: 1.0.0
// guid: 4c0e6a2d-8f5b-4b1c-9e7a-6d2f8c4a0e6b

package cmd

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble/v2"
	"github.com/jdfalk/coverfetch/internal/config"
	"github.com/jdfalk/coverfetch/internal/database"
	"github.com/spf13/cobra"
)

var (
	diagnosticsCmd = &cobra.Command{
		Use:   "diagnostics",
		Short: "Debugging and cleanup helpers",
		Long:  "Diagnostic utilities for inspecting and repairing the cover database.",
	}

	queryCmd = &cobra.Command{
		Use:   "query",
		Short: "Inspect books still needing covers",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			prefix, _ := cmd.Flags().GetString("prefix")
			raw, _ := cmd.Flags().GetBool("raw")
			return runDiagnosticsQuery(limit, prefix, raw)
		},
	}

	resetBackoffCmd = &cobra.Command{
		Use:   "reset-backoff <api-name>",
		Short: "Clear a stuck rate-limit backoff",
		Long: `Clear the backoff window for an external API. Useful when a stale
backoff_until timestamp keeps suppressing calls to a healthy API.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResetBackoff(args[0])
		},
	}
)

func init() {
	queryCmd.Flags().Int("limit", 5, "Number of records to display")
	queryCmd.Flags().String("prefix", "book:", "Key prefix to inspect when --raw is set")
	queryCmd.Flags().Bool("raw", false, "Show raw Pebble key/value data (Pebble only)")

	diagnosticsCmd.AddCommand(queryCmd)
	diagnosticsCmd.AddCommand(resetBackoffCmd)
	rootCmd.AddCommand(diagnosticsCmd)
}

func ensureDiagnosticsStore() (func(), error) {
	if err := database.InitializeStore(
		config.AppConfig.DatabaseType,
		config.AppConfig.DatabasePath,
		config.AppConfig.EnableSQLite,
	); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	cleanup := func() {
		database.CloseStore()
	}
	return cleanup, nil
}

func runDiagnosticsQuery(limit int, prefix string, raw bool) error {
	if limit <= 0 {
		return errors.New("limit must be positive")
	}

	if raw {
		if config.AppConfig.DatabaseType != "pebble" {
			return fmt.Errorf("raw inspection is only available for Pebble databases")
		}
		return runRawPebbleQuery(limit, prefix)
	}

	closer, err := ensureDiagnosticsStore()
	if err != nil {
		return err
	}
	defer closer()

	books, err := database.GlobalStore.ListBooksNeedingCovers(limit, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to fetch books: %w", err)
	}
	if len(books) == 0 {
		fmt.Println("No books need covers.")
		return nil
	}

	for i, book := range books {
		fmt.Printf("%2d. ID: %s\n", i+1, book.ID)
		fmt.Printf("    Title: %s\n", book.Title)
		if book.CoverStatus != nil {
			fmt.Printf("    Status: %s\n", *book.CoverStatus)
		}
		fmt.Printf("    Attempts: %d\n", book.CoverAttempts)
		if book.LastCoverAttemptAt != nil {
			fmt.Printf("    LastAttempt: %s\n", book.LastCoverAttemptAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Println("---")
	}

	return nil
}

func runResetBackoff(apiName string) error {
	closer, err := ensureDiagnosticsStore()
	if err != nil {
		return err
	}
	defer closer()

	state, err := database.GlobalStore.GetRateLimit(apiName)
	if err != nil {
		return fmt.Errorf("failed to read rate limit state: %w", err)
	}
	if state == nil {
		fmt.Printf("No rate limit state for %q; nothing to reset.\n", apiName)
		return nil
	}
	if state.BackoffUntil == nil {
		fmt.Printf("%q has no active backoff.\n", apiName)
		return nil
	}

	state.BackoffUntil = nil
	if err := database.GlobalStore.PutRateLimit(state); err != nil {
		return fmt.Errorf("failed to clear backoff: %w", err)
	}

	fmt.Printf("Cleared backoff for %q.\n", apiName)
	return nil
}

func runRawPebbleQuery(limit int, prefix string) error {
	db, err := pebble.Open(config.AppConfig.DatabasePath, &pebble.Options{
		FormatMajorVersion: pebble.FormatNewest,
	})
	if err != nil {
		return fmt.Errorf("failed to open Pebble database: %w", err)
	}
	defer db.Close()

	iterOpts := &pebble.IterOptions{}
	if prefix != "" {
		iterOpts.LowerBound = []byte(prefix)
		iterOpts.UpperBound = append([]byte(prefix), 0xFF)
	}

	iter, err := db.NewIter(iterOpts)
	if err != nil {
		return fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	count := 0
	ok := iter.First()
	if prefix != "" {
		ok = iter.SeekGE([]byte(prefix))
	}

	for ; ok && iter.Valid(); ok = iter.Next() {
		fmt.Printf("Key: %s\n", string(iter.Key()))
		val := iter.Value()
		fmt.Printf("Value length: %d bytes\n", len(val))
		preview := truncateString(string(val), 500)
		fmt.Printf("Value preview: %s\n", preview)
		fmt.Println("---")

		count++
		if count >= limit {
			break
		}
	}

	if err := iter.Error(); err != nil {
		return fmt.Errorf("iterator error: %w", err)
	}

	if count == 0 {
		fmt.Println("No keys matched the requested prefix.")
	}

	return nil
}

func truncateString(in string, max int) string {
	if len(in) <= max {
		return in
	}
	return in[:max] + "..."
}
