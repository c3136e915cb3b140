package bootstrap

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"relaymirror/internal/config"
	"relaymirror/internal/logger"
)

type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
	}
}

// InitDatabase opens the config store's backing database. The engine comes
// from config: sqlite (default, zero external services) or postgres.
func (dc *DatabaseConnector) InitDatabase(ctx context.Context) (*sqlx.DB, error) {
	switch dc.Config.Database.Engine {
	case "postgres":
		return dc.initPostgres(ctx)
	case "sqlite", "":
		return dc.initSQLite(ctx)
	default:
		return nil, fmt.Errorf("unsupported database engine %q", dc.Config.Database.Engine)
	}
}

func (dc *DatabaseConnector) initSQLite(ctx context.Context) (*sqlx.DB, error) {
	path := dc.Config.Database.SQLite.Path
	if path == "" {
		path = "relaymirror.db"
	}

	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}

	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	dc.Logger.Info("SQLite connected successfully")
	return db, nil
}

func (dc *DatabaseConnector) initPostgres(ctx context.Context) (*sqlx.DB, error) {
	pg := dc.Config.Database.Postgres
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		pg.User,
		pg.Password,
		pg.Host,
		pg.Port,
		pg.DBName,
		pg.SSLMode,
	)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dc.Logger.Info("PostgreSQL connected successfully")
	return db, nil
}

func (dc *DatabaseConnector) ShutdownDatabases(ctx context.Context, db *sqlx.DB) []error {
	var errs []error

	if db != nil {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close error: %w", err))
		}
	}

	return errs
}
