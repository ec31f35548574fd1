package tools

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

//go:embed migration/*
var migrationFiles embed.FS

// Backoff step between connection attempts, multiplied by the attempt number
var connectBackoff = 3 * time.Second

func ConnectSqlite(filePath string, l *logrus.Logger) (*sql.DB, error) {
	db, err := connectWithBackoff("sqlite3", filePath, 3, l)
	if err != nil {
		return nil, err
	}

	err = RunMigrations(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// RunMigrations applies every embedded migration, in file name order.
// Migrations must be idempotent.
func RunMigrations(db *sql.DB) error {
	dirEntries, err := fs.ReadDir(migrationFiles, "migration")
	if err != nil {
		return err
	}
	for _, entry := range dirEntries {
		fileName := path.Join("migration", entry.Name())
		fileData, err := fs.ReadFile(migrationFiles, fileName)
		if err != nil {
			return err
		}
		if _, err := db.Exec(string(fileData)); err != nil {
			return fmt.Errorf("migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func connectWithBackoff(driver string, connStr string, maxRetries int, l *logrus.Logger) (*sql.DB, error) {
	var db *sql.DB
	var err error
	for i := 0; i < maxRetries; i++ {
		db, err = sql.Open(driver, connStr)
		if err != nil {
			l.WithError(err).Warnf("Failed attempt to connect to %s", driver)
			time.Sleep(time.Duration(i+1) * connectBackoff)
			continue
		}
		err = db.Ping()
		if err != nil {
			db.Close()
			l.WithError(err).Warnf("Failed attempt to connect to %s", driver)
			time.Sleep(time.Duration(i+1) * connectBackoff)
			continue
		}
		return db, nil
	}
	return nil, err
}
