// Package database provides PostgreSQL connection pool management.
//
// The pool backs the sample store. Connections are tagged with the instance
// ID as application_name so they can be told apart in pg_stat_activity.
package database
