package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	var engine, dbUrl, migrationsPath, migrationsTable string

	flag.StringVar(&engine, "engine", "sqlite", "database engine: sqlite or mysql")
	flag.StringVar(&dbUrl, "db-url", "bank_website.db", "db path (sqlite) or user:pass@tcp(host:port)/db (mysql)")
	flag.StringVar(&migrationsPath, "migrations-path", "", "path to migrations")
	flag.StringVar(&migrationsTable, "migrations-table", "migrations", "name of migrations table")
	flag.Parse()

	if dbUrl == "" {
		panic("db url is required")
	}
	if migrationsPath == "" {
		migrationsPath = "./migrations/" + engine
	}

	var databaseUrl string
	switch engine {
	case "sqlite":
		databaseUrl = fmt.Sprintf("sqlite3://%s?x-migrations-table=%s", dbUrl, migrationsTable)
	case "mysql":
		databaseUrl = fmt.Sprintf("mysql://%s?x-migrations-table=%s", dbUrl, migrationsTable)
	default:
		panic("unknown engine: " + engine)
	}

	m, err := migrate.New("file://"+migrationsPath, databaseUrl)

	if err != nil {
		panic(err)
	}
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			fmt.Println("no migrations to apply")
			return
		}
		panic(err)
	}

	fmt.Println("migrations applied successfully")
}
