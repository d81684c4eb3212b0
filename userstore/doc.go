// Package userstore is a database/sql implementation of
// estateauth.UserProvider and estateauth.PasswordUpdater.
//
// It runs on SQLite (modernc.org/sqlite, driver name "sqlite") and on
// Postgres (pgx stdlib, driver name "pgx"). Migrate applies the embedded
// goose migrations for either dialect.
package userstore
