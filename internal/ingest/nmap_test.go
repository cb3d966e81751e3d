package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"

	"reconstore/internal/domain"
)

// fakeRecorder collects observations instead of writing them
type fakeRecorder struct {
	observed []domain.ComputerObservation
	failIP   string
}

func (f *fakeRecorder) RecordComputer(_ context.Context, obs domain.ComputerObservation) (int64, error) {
	if obs.IP == f.failIP {
		return 0, errors.New("database is locked")
	}
	f.observed = append(f.observed, obs)
	return int64(len(f.observed)), nil
}

func TestNmapImporter_ImportFile(t *testing.T) {
	rec := &fakeRecorder{}
	importer := NewNmapImporter(rec)

	result, err := importer.ImportFile(context.Background(), filepath.Join("testdata", "smb-scan.xml"))
	if err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}

	if result.Hosts != 3 || result.Recorded != 2 || result.Skipped != 1 {
		t.Errorf("unexpected result %+v", result)
	}
	if len(rec.observed) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(rec.observed))
	}

	dc := rec.observed[0]
	if dc.IP != "10.0.0.10" {
		t.Errorf("expected IP 10.0.0.10, got %s", dc.IP)
	}
	if dc.Hostname != "DC01" {
		t.Errorf("expected hostname DC01, got %q", dc.Hostname)
	}
	if dc.Domain != "corp.local" {
		t.Errorf("expected domain corp.local, got %q", dc.Domain)
	}
	if dc.OS != "Windows Server 2019 Standard 17763" {
		t.Errorf("unexpected OS %q", dc.OS)
	}
	if dc.SMBv1 {
		t.Error("expected SMBv1 disabled on DC01")
	}
	if !dc.Signing {
		t.Error("expected signing required on DC01")
	}
	if dc.DC == nil || !*dc.DC {
		t.Error("expected DC01 to be flagged as a domain controller")
	}

	ws := rec.observed[1]
	if ws.Hostname != "ws25" || ws.Domain != "corp.local" {
		t.Errorf("expected reverse DNS fallback ws25/corp.local, got %q/%q", ws.Hostname, ws.Domain)
	}
	if !ws.SMBv1 {
		t.Error("expected SMBv1 enabled on ws25")
	}
	if ws.Signing {
		t.Error("expected signing not required on ws25")
	}
	if ws.DC != nil {
		t.Error("expected DC flag to be left unknown for ws25")
	}
}

func TestNmapImporter_ImportXMLInvalid(t *testing.T) {
	importer := NewNmapImporter(&fakeRecorder{})

	if _, err := importer.ImportXML(context.Background(), []byte("<nmaprun><host>")); err == nil {
		t.Error("expected error for truncated XML")
	}
}

func TestNmapImporter_ImportCollectsErrors(t *testing.T) {
	rec := &fakeRecorder{failIP: "10.0.0.1"}
	importer := NewNmapImporter(rec)

	run := &nmap.Run{
		Hosts: []nmap.Host{
			{Status: nmap.Status{State: "up"}, Addresses: []nmap.Address{{Addr: "10.0.0.1", AddrType: "ipv4"}}},
			{Status: nmap.Status{State: "up"}, Addresses: []nmap.Address{{Addr: "10.0.0.2", AddrType: "ipv4"}}},
		},
	}

	result, err := importer.Import(context.Background(), run)
	if err == nil {
		t.Fatal("expected error for failing host")
	}
	if result.Recorded != 1 {
		t.Errorf("expected the second host to be recorded, got %+v", result)
	}
	if len(rec.observed) != 1 || rec.observed[0].IP != "10.0.0.2" {
		t.Errorf("unexpected observations %+v", rec.observed)
	}
}

func TestNmapImporter_ImportNil(t *testing.T) {
	importer := NewNmapImporter(&fakeRecorder{})

	if _, err := importer.Import(context.Background(), nil); err == nil {
		t.Error("expected error for nil run")
	}
}

func TestObserve(t *testing.T) {
	tests := []struct {
		name     string
		host     nmap.Host
		wantOK   bool
		wantIP   string
		wantHost string
		wantOS   string
	}{
		{
			name:   "down host",
			host:   nmap.Host{Status: nmap.Status{State: "down"}, Addresses: []nmap.Address{{Addr: "10.0.0.1", AddrType: "ipv4"}}},
			wantOK: false,
		},
		{
			name:   "ipv6 only",
			host:   nmap.Host{Status: nmap.Status{State: "up"}, Addresses: []nmap.Address{{Addr: "fe80::1", AddrType: "ipv6"}}},
			wantOK: false,
		},
		{
			name: "first ipv4 after mac",
			host: nmap.Host{
				Status: nmap.Status{State: "up"},
				Addresses: []nmap.Address{
					{Addr: "AA:BB:CC:DD:EE:FF", AddrType: "mac"},
					{Addr: "10.0.0.7", AddrType: "ipv4"},
				},
				Hostnames: []nmap.Hostname{{Name: "printer"}},
				OS:        nmap.OS{Matches: []nmap.OSMatch{{Name: "HP embedded", Accuracy: 95}}},
			},
			wantOK:   true,
			wantIP:   "10.0.0.7",
			wantHost: "printer",
			wantOS:   "HP embedded",
		},
		{
			name: "port script only",
			host: nmap.Host{
				Status:    nmap.Status{State: "up"},
				Addresses: []nmap.Address{{Addr: "10.0.0.8", AddrType: "ipv4"}},
				Ports: []nmap.Port{{
					ID:    445,
					State: nmap.State{State: "open"},
					Scripts: []nmap.Script{{
						ID: scriptOSDiscovery,
						Elements: []nmap.Element{
							{Key: "os", Value: "Windows 10 Pro 19045"},
							{Key: "fqdn", Value: "ws08.lab.local"},
						},
					}},
				}},
			},
			wantOK:   true,
			wantIP:   "10.0.0.8",
			wantHost: "ws08",
			wantOS:   "Windows 10 Pro 19045",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, ok := Observe(tt.host)
			if ok != tt.wantOK {
				t.Fatalf("Observe() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if obs.IP != tt.wantIP {
				t.Errorf("IP = %s, want %s", obs.IP, tt.wantIP)
			}
			if obs.Hostname != tt.wantHost {
				t.Errorf("Hostname = %s, want %s", obs.Hostname, tt.wantHost)
			}
			if obs.OS != tt.wantOS {
				t.Errorf("OS = %s, want %s", obs.OS, tt.wantOS)
			}
		})
	}
}

func TestSigningRequired(t *testing.T) {
	tests := []struct {
		name   string
		script nmap.Script
		want   bool
	}{
		{
			name:   "smb2 required",
			script: nmap.Script{Output: "3:1:1: Message signing enabled and required"},
			want:   true,
		},
		{
			name:   "smb2 not required",
			script: nmap.Script{Output: "3:1:1: Message signing enabled but not required"},
			want:   false,
		},
		{
			name:   "smb1 element",
			script: nmap.Script{Elements: []nmap.Element{{Key: "message_signing", Value: "required"}}},
			want:   true,
		},
		{
			name:   "smb1 disabled",
			script: nmap.Script{Elements: []nmap.Element{{Key: "message_signing", Value: "disabled (dangerous, but default)"}}},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := signingRequired(tt.script); got != tt.want {
				t.Errorf("signingRequired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNmapImporter_Options(t *testing.T) {
	t.Run("WithTimeout", func(t *testing.T) {
		importer := NewNmapImporter(nil, WithTimeout(20*time.Minute))
		if importer.timeout != 20*time.Minute {
			t.Errorf("expected timeout 20m, got %v", importer.timeout)
		}
	})

	t.Run("WithPortRange", func(t *testing.T) {
		importer := NewNmapImporter(nil, WithPortRange("1-1000"))
		if importer.portRange != "1-1000" {
			t.Errorf("expected port range 1-1000, got %s", importer.portRange)
		}
	})

	t.Run("WithPortRange invalid keeps default", func(t *testing.T) {
		importer := NewNmapImporter(nil, WithPortRange("445,70000"))
		if importer.portRange != "88,139,389,445" {
			t.Errorf("expected default port range, got %s", importer.portRange)
		}
	})

	t.Run("WithSkipHostDiscovery", func(t *testing.T) {
		importer := NewNmapImporter(nil, WithSkipHostDiscovery(true))
		if !importer.skipHostDiscovery {
			t.Error("expected skip host discovery enabled")
		}
	})
}

func TestNmapImporter_ScanNoTargets(t *testing.T) {
	importer := NewNmapImporter(&fakeRecorder{})

	result, err := importer.Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if result.Hosts != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}
