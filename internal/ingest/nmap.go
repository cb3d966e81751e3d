package ingest

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"reconstore/internal/domain"
)

// Scripts the importer knows how to read
const (
	scriptOSDiscovery  = "smb-os-discovery"
	scriptProtocols    = "smb-protocols"
	scriptSMB2Security = "smb2-security-mode"
	scriptSMBSecurity  = "smb-security-mode"
)

// Ports that mark a domain controller when both are open
const (
	portKerberos = 88
	portLDAP     = 389
)

// smbv1Dialect is how nmap names the SMBv1 dialect
const smbv1Dialect = "NT LM 0.12"

// ComputerRecorder is the part of the store the importer writes to
type ComputerRecorder interface {
	RecordComputer(ctx context.Context, obs domain.ComputerObservation) (int64, error)
}

// ImportResult counts what an import did
type ImportResult struct {
	Hosts    int // hosts in the report
	Recorded int // hosts passed to the store
	Skipped  int // hosts that were down or had no address
}

// NmapImporter records computers found by nmap
type NmapImporter struct {
	store             ComputerRecorder
	log               zerolog.Logger
	timeout           time.Duration
	portRange         string
	skipHostDiscovery bool
}

// NewNmapImporter creates an importer writing to store
func NewNmapImporter(store ComputerRecorder, opts ...NmapOption) *NmapImporter {
	n := &NmapImporter{
		store:     store,
		log:       zerolog.Nop(),
		timeout:   10 * time.Minute,
		portRange: "88,139,389,445",
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// ImportFile reads an nmap XML report from disk
func (n *NmapImporter) ImportFile(ctx context.Context, path string) (ImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("read nmap report: %w", err)
	}
	return n.ImportXML(ctx, data)
}

// ImportXML parses an nmap XML report and records its hosts
func (n *NmapImporter) ImportXML(ctx context.Context, data []byte) (ImportResult, error) {
	var run nmap.Run
	if err := nmap.Parse(data, &run); err != nil {
		return ImportResult{}, fmt.Errorf("parse nmap report: %w", err)
	}
	return n.Import(ctx, &run)
}

// Scan runs nmap against targets with the SMB discovery scripts and records
// the result
func (n *NmapImporter) Scan(ctx context.Context, targets []string) (ImportResult, error) {
	if len(targets) == 0 {
		return ImportResult{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	opts := []nmap.Option{
		nmap.WithTargets(targets...),
		nmap.WithPorts(n.portRange),
		nmap.WithScripts(scriptOSDiscovery, scriptProtocols, scriptSMB2Security, scriptSMBSecurity),
	}
	if n.skipHostDiscovery {
		opts = append(opts, nmap.WithSkipHostDiscovery())
	}

	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to create scanner: %w", err)
	}

	n.log.Info().Strs("targets", targets).Str("ports", n.portRange).Msg("starting nmap scan")
	run, warnings, err := scanner.Run()
	if err != nil {
		return ImportResult{}, fmt.Errorf("scan failed: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		n.log.Warn().Strs("warnings", *warnings).Msg("nmap reported warnings")
	}

	return n.Import(ctx, run)
}

// Import records every host of run that is up. A failed host does not stop
// the others; all failures are returned together.
func (n *NmapImporter) Import(ctx context.Context, run *nmap.Run) (ImportResult, error) {
	if run == nil {
		return ImportResult{}, fmt.Errorf("nil scan result")
	}

	var (
		result ImportResult
		errs   *multierror.Error
	)
	result.Hosts = len(run.Hosts)

	for _, host := range run.Hosts {
		obs, ok := Observe(host)
		if !ok {
			result.Skipped++
			continue
		}

		id, err := n.store.RecordComputer(ctx, obs)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("record %s: %w", obs.IP, err))
			continue
		}
		result.Recorded++

		n.log.Debug().Str("ip", obs.IP).Str("hostname", obs.Hostname).Str("domain", obs.Domain).
			Int64("id", id).Msg("nmap host recorded")
	}

	n.log.Info().Int("hosts", result.Hosts).Int("recorded", result.Recorded).
		Int("skipped", result.Skipped).Msg("nmap import complete")
	return result, errs.ErrorOrNil()
}

// Observe converts one nmap host into a computer observation. It reports
// false for hosts that are down or have no IPv4 address.
func Observe(host nmap.Host) (domain.ComputerObservation, bool) {
	if host.Status.State != "up" {
		return domain.ComputerObservation{}, false
	}

	var obs domain.ComputerObservation
	for _, addr := range host.Addresses {
		if addr.AddrType == "ipv4" {
			obs.IP = addr.Addr
			break
		}
	}
	if obs.IP == "" {
		return domain.ComputerObservation{}, false
	}

	if script, ok := findScript(host, scriptOSDiscovery); ok {
		applyOSDiscovery(&obs, script)
	}

	// Reverse DNS and OS fingerprint only fill what SMB did not report
	if obs.Hostname == "" && len(host.Hostnames) > 0 {
		name := host.Hostnames[0].Name
		if short, rest, found := strings.Cut(name, "."); found {
			obs.Hostname = short
			if obs.Domain == "" {
				obs.Domain = rest
			}
		} else {
			obs.Hostname = name
		}
	}
	if obs.OS == "" && len(host.OS.Matches) > 0 {
		obs.OS = host.OS.Matches[0].Name
	}

	if script, ok := findScript(host, scriptProtocols); ok {
		obs.SMBv1 = scriptMentions(script, smbv1Dialect)
	}

	if script, ok := findScript(host, scriptSMB2Security); ok {
		obs.Signing = signingRequired(script)
	} else if script, ok := findScript(host, scriptSMBSecurity); ok {
		obs.Signing = signingRequired(script)
	}

	open := openPorts(host.Ports)
	if open[portKerberos] && open[portLDAP] {
		obs.DC = domain.Bool(true)
	}

	return obs, true
}

// findScript looks in host scripts first, then in per-port scripts
func findScript(host nmap.Host, id string) (nmap.Script, bool) {
	for _, s := range host.HostScripts {
		if s.ID == id {
			return s, true
		}
	}
	for _, p := range host.Ports {
		for _, s := range p.Scripts {
			if s.ID == id {
				return s, true
			}
		}
	}
	return nmap.Script{}, false
}

func applyOSDiscovery(obs *domain.ComputerObservation, script nmap.Script) {
	elems := make(map[string]string)
	for _, e := range script.Elements {
		elems[e.Key] = cleanValue(e.Value)
	}

	obs.OS = elems["os"]

	switch {
	case elems["server"] != "":
		obs.Hostname = elems["server"]
	case elems["fqdn"] != "":
		obs.Hostname, _, _ = strings.Cut(elems["fqdn"], ".")
	}

	switch {
	case elems["domain_dns"] != "":
		obs.Domain = elems["domain_dns"]
	case elems["domain"] != "":
		obs.Domain = elems["domain"]
	case elems["workgroup"] != "":
		obs.Domain = elems["workgroup"]
	}
}

// cleanValue strips the NUL padding nmap leaves on NetBIOS names
func cleanValue(s string) string {
	s = strings.ReplaceAll(s, `\x00`, "")
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}

func scriptMentions(script nmap.Script, needle string) bool {
	if strings.Contains(script.Output, needle) {
		return true
	}
	for _, e := range script.Elements {
		if strings.Contains(e.Value, needle) {
			return true
		}
	}
	return tablesMention(script.Tables, needle)
}

func tablesMention(tables []nmap.Table, needle string) bool {
	for _, t := range tables {
		for _, e := range t.Elements {
			if strings.Contains(e.Value, needle) {
				return true
			}
		}
		if tablesMention(t.Tables, needle) {
			return true
		}
	}
	return false
}

// signingRequired reads smb-security-mode ("message_signing: required") and
// smb2-security-mode ("Message signing enabled and required") output
func signingRequired(script nmap.Script) bool {
	out := strings.ToLower(script.Output)
	for _, e := range script.Elements {
		if e.Key == "message_signing" {
			out += "\n" + strings.ToLower(e.Value)
		}
	}
	var collect func([]nmap.Table)
	collect = func(tables []nmap.Table) {
		for _, t := range tables {
			for _, e := range t.Elements {
				out += "\n" + strings.ToLower(e.Value)
			}
			collect(t.Tables)
		}
	}
	collect(script.Tables)

	return strings.Contains(out, "required") && !strings.Contains(out, "not required")
}

func openPorts(ports []nmap.Port) map[uint16]bool {
	open := make(map[uint16]bool)
	for _, p := range ports {
		if p.State.State == "open" {
			open[p.ID] = true
		}
	}
	return open
}

// parsePorts validates a port list
// Supported: "80,443,8080" or "1-1000" or "22,80-443,8080"
func parsePorts(portRange string) (string, error) {
	parts := strings.Split(portRange, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if strings.Contains(part, "-") {
			rangeParts := strings.Split(part, "-")
			if len(rangeParts) != 2 {
				return "", fmt.Errorf("invalid port range: %s", part)
			}
			start, err := strconv.Atoi(strings.TrimSpace(rangeParts[0]))
			if err != nil || start < 1 || start > 65535 {
				return "", fmt.Errorf("invalid port number: %s", rangeParts[0])
			}
			end, err := strconv.Atoi(strings.TrimSpace(rangeParts[1]))
			if err != nil || end < 1 || end > 65535 || end < start {
				return "", fmt.Errorf("invalid port number: %s", rangeParts[1])
			}
		} else {
			port, err := strconv.Atoi(part)
			if err != nil || port < 1 || port > 65535 {
				return "", fmt.Errorf("invalid port number: %s", part)
			}
		}
	}
	return portRange, nil
}
