package model

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Store is the gorm backed entity store. Every owner scoped method filters by
// the owner id it receives, so callers cannot forget the tenant filter.
type Store struct {
	db     *gorm.DB
	Config *Config
}

// NewStore wraps an open gorm connection and migrates the schema.
func NewStore(db *gorm.DB, cfg *Config) (*Store, error) {
	s := &Store{db: db, Config: cfg}
	if err := s.autoMigrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) autoMigrate() error {
	models := []any{
		&User{},
		&APIToken{},
		&Client{},
		&Invoice{},
		&InvoiceItem{},
		&RecurringTemplate{},
		&RecurringTemplateItem{},
	}
	for _, m := range models {
		if err := s.db.AutoMigrate(m); err != nil {
			return fmt.Errorf("auto migrate %T: %w", m, err)
		}
	}
	return nil
}

// InitDatabase opens the database configured for cfg.Mode. Supported
// backends are "sqlite3" (file below Basedir/db), "memory" (private in-memory
// SQLite) and "postgresql".
func InitDatabase(cfg *Config) (*Store, error) {
	svr := cfg.Server()
	gormConfig := gormLoggerFor(cfg, svr)

	var (
		db  *gorm.DB
		err error
	)
	switch svr.Database {
	case "sqlite3":
		filename := filepath.Join(cfg.Basedir, "db", svr.DBName)
		slog.Info("open database", "backend", "sqlite3", "file", filename)
		db, err = gorm.Open(sqlite.Open(filename+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"), gormConfig)
		if err == nil {
			err = singleConnection(db)
		}
	case "memory":
		slog.Info("open database", "backend", "memory", "name", svr.DBName)
		db, err = OpenMemory(svr.DBName, gormConfig)
	case "postgresql":
		port := svr.DBPort
		if port == 0 {
			port = 5432
		}
		slog.Info("open database", "backend", "postgresql", "database", svr.DBName, "host", svr.DBHost)
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
			svr.DBHost, svr.DBUser, svr.DBPassword, svr.DBName, port)
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	default:
		return nil, fmt.Errorf("unknown database backend %q", svr.Database)
	}
	if err != nil {
		return nil, err
	}
	return NewStore(db, cfg)
}

// OpenMemory opens a named in-memory SQLite database. The database lives as
// long as its single connection.
func OpenMemory(name string, gormConfig *gorm.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig)
	if err != nil {
		return nil, err
	}
	if err = singleConnection(db); err != nil {
		return nil, err
	}
	return db, nil
}

// SQLite allows one writer; a single pooled connection serialises
// transactions instead of failing them with SQLITE_BUSY.
func singleConnection(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) isPostgres() bool { return s.db.Dialector.Name() == "postgres" }
