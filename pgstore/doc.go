// Package pgstore implements the goGuard collaborator interfaces on
// PostgreSQL through database/sql and the pgx driver.
//
// One Store serves as SubjectProvider, ActivityStore and
// CredentialRecoveryStore, so a recovery consume clears the token and writes
// the replacement credential in a single transaction. Schema holds the DDL
// the queries expect; applying it is left to the caller's migration tool.
package pgstore
