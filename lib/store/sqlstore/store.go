package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/ValentinKolb/dLock/lib/store/sqlstore/migrations"
	"github.com/lni/dragonboat/v4/logger"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var log = logger.GetLogger("store")

// Store persists documents in a single SQLite file.
type Store struct {
	sqlDB *sql.DB
	path  string
}

// Open opens (or creates) a SQLite document store and applies the embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// sqlite has a single writer, a single connection avoids SQLITE_BUSY on lock upgrades
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, path: cleanPath}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func internalError(op string, err error) *store.Error {
	return store.NewError(store.RetCInternalError, fmt.Sprintf("%s: %v", op, err))
}

// withWrite runs fn inside a transaction that has already claimed the next write index.
// The transaction is committed only if fn returns nil.
func (s *Store) withWrite(ctx context.Context, op string, fn func(tx *sql.Tx, index uint64) error) error {
	if err := ctx.Err(); err != nil {
		return store.NewError(store.RetCInternalError, err.Error())
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return internalError(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	var index uint64
	if err := tx.QueryRowContext(ctx, `UPDATE write_index SET idx = idx + 1 WHERE id = 1 RETURNING idx`).Scan(&index); err != nil {
		return internalError(op, err)
	}

	if err := fn(tx, index); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return internalError(op, err)
	}
	return nil
}

// currentVersion returns the stored version of key or db.VersionAbsent
func currentVersion(ctx context.Context, tx *sql.Tx, key string) uint64 {
	var version uint64
	if err := tx.QueryRowContext(ctx, `SELECT version FROM documents WHERE key = ?`, key).Scan(&version); err != nil {
		return db.VersionAbsent
	}
	return version
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *Store) Get(ctx context.Context, key string) (db.Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return db.Document{}, false, store.NewError(store.RetCInternalError, err.Error())
	}
	doc := db.Document{Key: key}
	err := s.sqlDB.QueryRowContext(ctx, `SELECT value, version FROM documents WHERE key = ?`, key).Scan(&doc.Value, &doc.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return db.Document{}, false, nil
	}
	if err != nil {
		return db.Document{}, false, internalError("get document", err)
	}
	return doc, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	var version uint64
	err := s.withWrite(ctx, "put document", func(tx *sql.Tx, index uint64) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO documents (key, value, version) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, version = excluded.version`,
			key, value, index,
		)
		if err != nil {
			return internalError("put document", err)
		}
		version = index
		return nil
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (s *Store) PutIf(ctx context.Context, key string, value []byte, expectedVersion uint64) (uint64, error) {
	var version uint64
	err := s.withWrite(ctx, "put document", func(tx *sql.Tx, index uint64) error {
		if expectedVersion == db.VersionAbsent {
			_, err := tx.ExecContext(ctx, `INSERT INTO documents (key, value, version) VALUES (?, ?, ?)`, key, value, index)
			if isUniqueViolation(err) {
				return store.NewConditionFailedError(key, expectedVersion, currentVersion(ctx, tx, key))
			}
			if err != nil {
				return internalError("create document", err)
			}
			version = index
			return nil
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE documents SET value = ?, version = ? WHERE key = ? AND version = ?`,
			value, index, key, expectedVersion,
		)
		if err != nil {
			return internalError("update document", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return internalError("update document", err)
		} else if n == 0 {
			return store.NewConditionFailedError(key, expectedVersion, currentVersion(ctx, tx, key))
		}
		version = index
		return nil
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.withWrite(ctx, "delete document", func(tx *sql.Tx, _ uint64) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE key = ?`, key); err != nil {
			return internalError("delete document", err)
		}
		return nil
	})
}

func (s *Store) DeleteIf(ctx context.Context, key string, expectedVersion uint64) error {
	return s.withWrite(ctx, "delete document", func(tx *sql.Tx, _ uint64) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE key = ? AND version = ?`, key, expectedVersion)
		if err != nil {
			return internalError("delete document", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return internalError("delete document", err)
		} else if n == 0 {
			return store.NewConditionFailedError(key, expectedVersion, currentVersion(ctx, tx, key))
		}
		return nil
	})
}

func (s *Store) Scan(ctx context.Context, prefix string, limit int) ([]db.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.NewError(store.RetCInternalError, err.Error())
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT key, value, version FROM documents WHERE key >= ? ORDER BY key`, prefix)
	if err != nil {
		return nil, internalError("scan documents", err)
	}
	defer rows.Close()

	docs := make([]db.Document, 0)
	for rows.Next() {
		var doc db.Document
		if err := rows.Scan(&doc.Key, &doc.Value, &doc.Version); err != nil {
			return nil, internalError("scan documents", err)
		}
		// keys are ordered, the first key without the prefix ends the range
		if !strings.HasPrefix(doc.Key, prefix) {
			break
		}
		docs = append(docs, doc)
		if limit > 0 && len(docs) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, internalError("scan documents", err)
	}
	return docs, nil
}

func (s *Store) GetDBInfo(ctx context.Context) (db.DatabaseInfo, error) {
	if err := ctx.Err(); err != nil {
		return db.DatabaseInfo{}, store.NewError(store.RetCInternalError, err.Error())
	}
	var (
		entries   int
		sizeBytes int
		writeIdx  uint64
	)
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(1), COALESCE(SUM(LENGTH(key) + LENGTH(value)), 0), (SELECT idx FROM write_index WHERE id = 1) FROM documents`)
	if err := row.Scan(&entries, &sizeBytes, &writeIdx); err != nil {
		return db.DatabaseInfo{}, internalError("database info", err)
	}
	return db.DatabaseInfo{
		SizeBytes: sizeBytes,
		Entries:   entries,
		DbType:    db.ImplSQLite,
		SupportedFeatures: []db.Feature{
			db.FeaturePut, db.FeaturePutIf, db.FeatureGet,
			db.FeatureDelete, db.FeatureDeleteIf, db.FeatureScan,
		},
		Metadata: map[string]interface{}{
			"path":     s.path,
			"writeIdx": writeIdx,
		},
	}, nil
}

var _ store.IStore = (*Store)(nil)
