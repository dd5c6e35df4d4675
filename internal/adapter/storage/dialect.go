package storage

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	mysqlDuplicateEntry = 1062
	pgUniqueViolation   = "23505"
)

// Dialect captures the SQL differences between the supported databases.
type Dialect struct {
	Name       string
	DriverName string
	schemaFile string

	placeholder       func(n int) string
	textSearch        func(arg string) string
	isUniqueViolation func(err error) bool
}

var MySQL = Dialect{
	Name:        "mysql",
	DriverName:  "mysql",
	schemaFile:  "schema/mysql.sql",
	placeholder: func(int) string { return "?" },
	textSearch: func(arg string) string {
		return "MATCH(artist, album, category) AGAINST (" + arg + " IN NATURAL LANGUAGE MODE)"
	},
	isUniqueViolation: func(err error) bool {
		var myErr *mysql.MySQLError
		return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
	},
}

var Postgres = Dialect{
	Name:        "postgres",
	DriverName:  "pgx",
	schemaFile:  "schema/postgres.sql",
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	textSearch: func(arg string) string {
		return "to_tsvector('simple', artist || ' ' || album || ' ' || category) @@ plainto_tsquery('simple', " + arg + ")"
	},
	isUniqueViolation: func(err error) bool {
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
	},
}

func DialectByName(name string) (Dialect, error) {
	switch name {
	case MySQL.Name:
		return MySQL, nil
	case Postgres.Name:
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported sql dialect %q", name)
	}
}
