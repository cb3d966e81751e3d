// Package repository defines the data access interface of the recon store.
//
// Producers (scan modules) call the Record* methods as they learn facts;
// consumers (reporting, the CLI) call the Get* and Is*Valid methods. The
// implementation lives in the sqlite subpackage.
//
// # Reconciliation
//
// Record* methods insert an entity the first time it is seen and update it
// in place afterwards, keyed on its natural dedup key: IP for computers,
// (domain, username, credtype) for credentials, (domain, name) for groups,
// (computer, user, name) for shares. Each call runs in its own transaction.
//
// # Filter Terms
//
// Most Get* methods take one free-form filter. It is tried as a row id
// first; if no such row exists it is used as a case-insensitive substring
// filter; the empty string returns every row.
//
// # Missing References
//
// Passing an unknown group, host or user id never raises: the call writes
// nothing and returns a zero id. Only storage faults are returned as errors.
package repository
