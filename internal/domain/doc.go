// Package domain defines the entity types recorded by the recon store.
//
// The store tracks what a network scan learns about a Windows estate:
// computers, credentials, groups, shares, and the relations between them.
//
// # Core Types
//
// Computer is a host keyed by IP address. Later observations for the same IP
// update the existing record instead of creating a new one.
//
// Credential is an account in the users table. A bare account with no secret
// can be registered first and upgraded once a password or hash is found.
//
// Group and Share are discovered directory groups and SMB shares.
//
// AdminRelation, GroupRelation and LoggedInRelation are many-to-many edges
// between credentials and computers or groups.
//
// # Normalization
//
// NormalizeDomain reduces any dotted domain to its upper-cased first label,
// so "corp.local", "CORP.LOCAL" and "CORP" all record as "CORP".
//
// # Design Principles
//
// - No database or external dependencies
// - Field order on entity structs mirrors the column order of their tables
package domain
