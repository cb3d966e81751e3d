// Package ingest turns scanner output into store observations.
//
// The nmap importer reads an XML report, or runs nmap itself with the SMB
// discovery scripts, and records one computer per host that is up. The
// Watcher feeds it reports as they land in a directory.
//
// The Replayer merges an exported snapshot into a store through the same
// record operations a live scan uses.
package ingest
