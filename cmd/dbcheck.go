package cmd

import (
	"context"
	"errors"
	"fmt"
	"github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/datastore"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

const (
	dbCheckCollection     = "connection_test"
	dbCheckDefaultTimeout = 10 * time.Second
)

var dbCheckTimeout time.Duration

var dbCheckCmd = &cobra.Command{
	Use:   "dbcheck",
	Short: "Check connectivity to the configured remote database",
	Long: `Connects to database.uri and reports what it finds. For MongoDB,
lists databases and collections and inserts then deletes a probe
document. For Postgres and SQLite, pings the server and lists tables.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		w := cmd.OutOrStdout()
		result, err := runDBCheck(cmd.Context(), *cfg.Database, dbCheckTimeout, cliLogger(cfg.LogLevel))
		if err != nil {
			fmt.Fprintf(w, "❌ Error de conexión: %v\n", err)
			for _, hint := range dbCheckHints(err) {
				fmt.Fprintf(w, "💡 %s\n", hint)
			}
			return err
		}
		printDBCheck(w, result)
		return nil
	},
}

type dbCheckResult struct {
	Backend     string
	Server      string
	Version     string
	Databases   []string
	Database    string
	Collections []string
	Probe       bool
}

func runDBCheck(
	ctx context.Context,
	dbConfig datastore.Config,
	timeout time.Duration,
	logger *slog.Logger,
) (dbCheckResult, error) {
	rv := dbCheckResult{
		Backend: dbConfig.BackendType(),
		Server:  redactURI(dbConfig.URI),
	}
	if !dbConfig.RemoteConfigured() {
		return rv, errors.New("no remote database configured (set database.uri or MONGODB_URI)")
	}
	if timeout <= 0 {
		timeout = dbCheckDefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var err error
	switch rv.Backend {
	case datastore.BackendMongoDB:
		err = checkMongo(ctx, dbConfig, timeout, logger, &rv)
	case datastore.BackendPostgres:
		err = checkPostgres(ctx, dbConfig.URI, &rv)
	case datastore.BackendSQLite:
		err = checkSQLite(ctx, dbConfig, logger, &rv)
	default:
		err = fmt.Errorf("unsupported database type: %s", rv.Backend)
	}
	return rv, err
}

func checkMongo(
	ctx context.Context,
	dbConfig datastore.Config,
	timeout time.Duration,
	logger *slog.Logger,
	rv *dbCheckResult,
) error {
	m, err := datastore.ConnectMongo(ctx, dbConfig.URI, dbConfig.Name, timeout, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), timeout)
		defer closeCancel()
		_ = m.Close(closeCtx)
	}()

	var buildInfo bson.M
	if err = m.Client().Database("admin").RunCommand(
		ctx,
		bson.D{{Key: "buildInfo", Value: 1}},
	).Decode(&buildInfo); err == nil {
		rv.Version, _ = buildInfo["version"].(string)
	}

	rv.Databases, err = m.Client().ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("listing databases: %w", err)
	}

	db := m.Database()
	rv.Database = db.Name()
	rv.Collections, err = db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("listing collections: %w", err)
	}

	coll := db.Collection(dbCheckCollection)
	res, err := coll.InsertOne(
		ctx,
		bson.M{"test": "conexión exitosa", "timestamp": time.Now().UTC()},
	)
	if err != nil {
		return fmt.Errorf("inserting probe document: %w", err)
	}
	if _, err = coll.DeleteOne(ctx, bson.M{"_id": res.InsertedID}); err != nil {
		return fmt.Errorf("deleting probe document: %w", err)
	}
	rv.Probe = true
	return nil
}

func checkPostgres(ctx context.Context, uri string, rv *dbCheckResult) error {
	pool, err := pgxpool.New(ctx, uri)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err = pool.Ping(ctx); err != nil {
		return err
	}
	if err = pool.QueryRow(ctx, "SHOW server_version").Scan(&rv.Version); err != nil {
		return fmt.Errorf("reading server version: %w", err)
	}
	if err = pool.QueryRow(ctx, "SELECT current_database()").Scan(&rv.Database); err != nil {
		return fmt.Errorf("reading database name: %w", err)
	}

	rows, err := pool.Query(
		ctx,
		`SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' ORDER BY table_name`,
	)
	if err != nil {
		return fmt.Errorf("listing tables: %w", err)
	}
	rv.Collections, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("listing tables: %w", err)
	}
	rv.Probe = true
	return nil
}

func checkSQLite(
	ctx context.Context,
	dbConfig datastore.Config,
	logger *slog.Logger,
	rv *dbCheckResult,
) error {
	s, err := datastore.OpenSQL(
		ctx,
		datastore.BackendSQLite,
		dbConfig.URI,
		logger,
		dbConfig.SlowThreshold,
	)
	if err != nil {
		return err
	}
	defer func() {
		_ = s.Close(context.Background())
	}()

	row := s.DB().WithContext(ctx).Raw("SELECT sqlite_version()").Row()
	if err = row.Scan(&rv.Version); err != nil {
		return fmt.Errorf("reading sqlite version: %w", err)
	}
	rv.Database = dbConfig.URI
	tables, err := s.DB().Migrator().GetTables()
	if err != nil {
		return fmt.Errorf("listing tables: %w", err)
	}
	rv.Databases = tables
	rv.Collections, err = s.Collections(ctx)
	if err != nil {
		return fmt.Errorf("listing collections: %w", err)
	}
	rv.Probe = true
	return nil
}

func printDBCheck(w io.Writer, rv dbCheckResult) {
	fmt.Fprintf(w, "🔗 Servidor: %s (%s)\n", rv.Server, rv.Backend)
	if rv.Version != "" {
		fmt.Fprintf(w, "ℹ️  Versión: %s\n", rv.Version)
	}
	if rv.Backend == datastore.BackendMongoDB {
		fmt.Fprintf(w, "📚 Bases de datos: %s\n", joinOrNone(rv.Databases))
	} else if len(rv.Databases) > 0 {
		fmt.Fprintf(w, "📚 Tablas: %s\n", joinOrNone(rv.Databases))
	}
	fmt.Fprintf(w, "📂 Colecciones en %s: %s\n", rv.Database, joinOrNone(rv.Collections))
	if rv.Probe {
		fmt.Fprintln(w, "✅ Conexión verificada correctamente.")
	}
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(ninguna)"
	}
	return strings.Join(items, ", ")
}

// redactURI hides the password in a connection string.
func redactURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" {
		return uri
	}
	return u.Redacted()
}

// dbCheckHints suggests fixes for common connection failures.
func dbCheckHints(err error) []string {
	msg := strings.ToLower(err.Error())
	var hints []string
	if errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "server selection") {
		hints = append(
			hints,
			"Tiempo de espera agotado: verifica la URI, la red y que tu IP esté en la lista de acceso del servidor.",
		)
	}
	if strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "auth error") ||
		strings.Contains(msg, "sasl") ||
		strings.Contains(msg, "password") {
		hints = append(
			hints,
			"Error de autenticación: verifica el usuario y la contraseña de la URI.",
		)
	}
	if strings.Contains(msg, "ssl") ||
		strings.Contains(msg, "tls") ||
		strings.Contains(msg, "certificate") {
		hints = append(
			hints,
			"Error de SSL/TLS: verifica la configuración de certificados del servidor.",
		)
	}
	return hints
}

//goland:noinspection GoLinter
func init() {
	dbCheckCmd.Flags().DurationVar(
		&dbCheckTimeout,
		"timeout",
		dbCheckDefaultTimeout,
		"Overall time allowed for the check",
	)
	rootCmd.AddCommand(dbCheckCmd)
}
