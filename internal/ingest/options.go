package ingest

import (
	"time"

	"github.com/rs/zerolog"
)

// NmapOption is a functional option for configuring NmapImporter
type NmapOption func(*NmapImporter)

// WithLogger sets the importer logger
func WithLogger(l zerolog.Logger) NmapOption {
	return func(n *NmapImporter) {
		n.log = l
	}
}

// WithTimeout sets the timeout for a live scan
func WithTimeout(d time.Duration) NmapOption {
	return func(n *NmapImporter) {
		n.timeout = d
	}
}

// WithPortRange sets the ports for a live scan
// Format: "445" or "1-1000" or "88,139,389,445"
func WithPortRange(ports string) NmapOption {
	return func(n *NmapImporter) {
		if validated, err := parsePorts(ports); err == nil {
			n.portRange = validated
		}
	}
}

// WithSkipHostDiscovery treats every target as online (-Pn)
// Useful for networks that block ICMP
func WithSkipHostDiscovery(skip bool) NmapOption {
	return func(n *NmapImporter) {
		n.skipHostDiscovery = skip
	}
}
