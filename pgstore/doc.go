// Package pgstore implements the durable credential store and audit log on
// PostgreSQL.
//
// Repositories are bound to a minimal DBTX interface satisfied by both
// *sql.DB and *sql.Tx, so callers can compose them inside transactions.
// Schema management uses embedded goose migrations over the pgx stdlib
// driver.
package pgstore
