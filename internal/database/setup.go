package database

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/venaticlol/venatic/internal/models"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

func setPragmaValues(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}

	// these next 2 extremely speed up performance of sqlite
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return err
	}

	if _, err := db.Exec("PRAGMA synchronous = normal"); err != nil {
		return err
	}

	return nil
}

func readPragmaValues(db *sql.DB, sugar *zap.SugaredLogger) error {
	var foreignKeysValue bool
	err := db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeysValue)
	if err != nil {
		return err
	}
	sugar.Infof("sqlite PRAGMA foreign_keys: %t", foreignKeysValue)

	var journalModeValue string
	err = db.QueryRow("PRAGMA journal_mode").Scan(&journalModeValue)
	if err != nil {
		return err
	}
	sugar.Infof("sqlite PRAGMA journal_mode: %s", journalModeValue)

	var synchronousValue int

	err = db.QueryRow("PRAGMA synchronous").Scan(&synchronousValue)
	if err != nil {
		return err
	}

	var synchronousValueStr string
	switch synchronousValue {
	case 0:
		synchronousValueStr = "off"
	case 1:
		synchronousValueStr = "normal"
	case 2:
		synchronousValueStr = "full"
	case 3:
		synchronousValueStr = "extra"
	default:
		return fmt.Errorf("synchronous value %d is unsupported", synchronousValue)
	}

	sugar.Infof("sqlite PRAGMA synchronous: %s", synchronousValueStr)

	return nil
}

func Setup(cfg *models.ConfigFile, sugar *zap.SugaredLogger) (*sql.DB, error) {
	if cfg.SelfContained {
		sugar.Info("Connecting to database sqlite...")
		return OpenSqlite(cfg.SqlitePath, sugar)
	}

	sugar.Info("Connecting to database mysql/mariadb...")
	db, err := sql.Open("mysql", fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&timeout=10s", cfg.DbUser, cfg.DbPassword, cfg.DbAddress, cfg.DbPort, cfg.DbDatabase))
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, err
	}

	err = setupTables(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// OpenSqlite opens the sqlite database at path and creates the tables.
// ":memory:" is accepted.
func OpenSqlite(path string, sugar *zap.SugaredLogger) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// there can be sqlite busy errors if this is not set to 1
	db.SetMaxOpenConns(1)

	err = setPragmaValues(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	err = readPragmaValues(db, sugar)
	if err != nil {
		db.Close()
		return nil, err
	}

	err = setupTables(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

var tables = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT PRIMARY KEY,
		username VARCHAR(32) NOT NULL UNIQUE,
		display_name VARCHAR(64) NOT NULL,
		date_of_birth VARCHAR(10) NOT NULL,
		picture TEXT NOT NULL,
		discriminator VARCHAR(4) NOT NULL,
		password BINARY(60) NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS usernames (
		username VARCHAR(32) PRIMARY KEY,
		user_id BIGINT NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS servers (
		id BIGINT PRIMARY KEY,
		owner_id BIGINT NOT NULL,
		name VARCHAR(64) NOT NULL,
		picture TEXT NOT NULL,
		FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS server_members (
		server_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		since TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (server_id, user_id),
		FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS channels (
		id BIGINT PRIMARY KEY,
		server_id BIGINT NOT NULL,
		name VARCHAR(32) NOT NULL,
		type VARCHAR(8) NOT NULL,
		FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGINT PRIMARY KEY,
		channel_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		message TEXT NOT NULL,
		edited BOOLEAN NOT NULL,
		FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS direct_messages (
		id BIGINT PRIMARY KEY,
		user_low BIGINT NOT NULL,
		user_high BIGINT NOT NULL,
		UNIQUE (user_low, user_high),
		FOREIGN KEY (user_low) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (user_high) REFERENCES users(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS direct_message_messages (
		id BIGINT PRIMARY KEY,
		dm_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		message TEXT NOT NULL,
		FOREIGN KEY (dm_id) REFERENCES direct_messages(id) ON DELETE CASCADE,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS portal_accounts (
		username VARCHAR(255) PRIMARY KEY,
		password VARCHAR(64) NOT NULL,
		created_at BIGINT NOT NULL
	);`,
}

func setupTables(db *sql.DB) error {
	for _, table := range tables {
		_, err := db.Exec(table)
		if err != nil {
			return err
		}
	}
	return nil
}
