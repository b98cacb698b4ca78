package database

import (
	"database/sql"
	"log"
	"net/url"
	"strings"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/skyfare/internal/models"
)

// Connect opens the Postgres connection, creating the target database on
// first run, and migrates the schema. Any failure here is fatal: the
// server cannot serve without its store.
func Connect(dsn string) *gorm.DB {
	if err := ensureDatabase(dsn); err != nil {
		log.Fatalf("[DB] ensure database: %v", err)
	}

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("[DB] connect: %v", err)
	}

	if err := conn.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		log.Printf("[DB] warning: uuid-ossp extension unavailable: %v", err)
	}

	if err := conn.AutoMigrate(
		&models.User{},
		&models.Booking{},
		&models.Passenger{},
		&models.Payment{},
		&models.PaymentEvent{},
	); err != nil {
		log.Fatalf("[DB] migrate: %v", err)
	}

	return conn
}

// ensureDatabase creates the database named in the DSN if it does not
// exist yet, connecting to the maintenance database to do so.
func ensureDatabase(dsn string) error {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return err
	}

	name := strings.TrimPrefix(parsed.Path, "/")
	if name == "" {
		return nil
	}

	parsed.Path = "/postgres"
	admin, err := sql.Open("postgres", parsed.String())
	if err != nil {
		return err
	}
	defer admin.Close()

	var exists bool
	err = admin.QueryRow("SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", name).Scan(&exists)
	if err != nil || exists {
		return err
	}

	log.Printf("[DB] creating database %s", name)
	_, err = admin.Exec("CREATE DATABASE " + pq.QuoteIdentifier(name))
	return err
}
