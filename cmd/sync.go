package cmd

import (
	"context"
	"errors"
	"fmt"
	"github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/datastore"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Migrate locally buffered documents to the configured remote database",
	Long: `Loads the JSON files in database.local_dir, connects to database.uri
and copies every buffered document to it. Local files are removed only
after every document has been written. Don't run this while the bot is
running; use POST /api/sync or /sincronizar instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSync(cmd.Context(), *cfg.Database, cmd.OutOrStdout(), cliLogger(cfg.LogLevel))
	},
}

func cliLogger(level slog.Leveler) *slog.Logger {
	return slog.New(
		tint.NewHandler(
			os.Stderr,
			&tint.Options{Level: level, TimeFormat: time.Kitchen},
		),
	)
}

func runSync(
	ctx context.Context,
	dbConfig datastore.Config,
	w io.Writer,
	logger *slog.Logger,
) error {
	if !dbConfig.RemoteConfigured() {
		return errors.New("no remote database configured (set database.uri or MONGODB_URI)")
	}
	if dbConfig.LocalDir == "" {
		return errors.New("database.local_dir is empty, nothing to sync")
	}

	local, err := datastore.NewLocalBackend(dbConfig.LocalDir, logger)
	if err != nil {
		return err
	}
	store := datastore.NewStore(local, datastore.ModeLocal, logger)
	defer func() {
		_ = store.Close(context.Background())
	}()

	pending := store.Pending()
	total := 0
	for _, n := range pending {
		total += n
	}
	fmt.Fprintf(w, "📦 %d documentos locales en %s\n", total, dbConfig.LocalDir)
	if total == 0 {
		fmt.Fprintln(w, "✅ Nada que sincronizar.")
		return nil
	}

	fmt.Fprintf(w, "🔗 Conectando a %s...\n", dbConfig.BackendType())
	remote, err := datastore.Connect(ctx, dbConfig, logger)
	if err != nil {
		return err
	}

	report, err := store.SyncToRemote(ctx, remote)
	if err != nil {
		_ = remote.Close(context.Background())
		return err
	}
	printSyncReport(w, report)
	return nil
}

func printSyncReport(w io.Writer, report datastore.SyncReport) {
	fmt.Fprintf(
		w,
		"✅ Sincronización completa: %d documentos migrados a %s\n",
		report.Documents,
		report.Backend,
	)
	names := make([]string, 0, len(report.Migrated)+len(report.Skipped))
	seen := map[string]bool{}
	for _, m := range []map[string]int{report.Migrated, report.Skipped} {
		for name := range m {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(
			w,
			"  - %s: %d migrados, %d omitidos\n",
			name,
			report.Migrated[name],
			report.Skipped[name],
		)
	}
}

//goland:noinspection GoLinter
func init() {
	rootCmd.AddCommand(syncCmd)
}
