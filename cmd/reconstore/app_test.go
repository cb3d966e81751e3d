package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cliEnv runs the app against a private config and store
type cliEnv struct {
	t       *testing.T
	dir     string
	config  string
	dbPath  string
	metrics string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	dir := t.TempDir()
	env := &cliEnv{
		t:       t,
		dir:     dir,
		config:  filepath.Join(dir, "reconstore.yaml"),
		dbPath:  filepath.Join(dir, "recon.db"),
		metrics: filepath.Join(dir, "reconstore.prom"),
	}

	cfg := "database:\n  path: " + env.dbPath + "\nlogging:\n  level: error\nmetrics:\n  textfile: " + env.metrics + "\n"
	require.NoError(t, os.WriteFile(env.config, []byte(cfg), 0644))
	return env
}

func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()

	var out bytes.Buffer
	app := newApp(context.Background(), &out)
	err := app.Run(append([]string{"reconstore", "--config", e.config}, args...))
	return out.String(), err
}

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()

	out, err := e.run(args...)
	require.NoError(e.t, err, "reconstore %s", strings.Join(args, " "))
	return out
}

func TestInitTwiceFails(t *testing.T) {
	env := newCLIEnv(t)

	env.mustRun("init")
	_, err := env.run("init")
	assert.Error(t, err)
}

func TestHostsRoundTrip(t *testing.T) {
	env := newCLIEnv(t)

	id := env.mustRun("add-host", "--ip", "10.0.0.10", "--hostname", "DC01", "--domain", "corp.local", "--dc", "true", "--signing")
	assert.Equal(t, "1\n", id)

	out := env.mustRun("hosts")
	assert.Contains(t, out, "10.0.0.10")
	assert.Contains(t, out, "DC01")
	assert.Contains(t, out, "CORP")

	out = env.mustRun("hosts", "--domain", "CORP", "dc")
	assert.Contains(t, out, "DC01")

	_, err := env.run("add-host", "--ip", "10.0.0.11", "--dc", "maybe")
	assert.Error(t, err)

	_, err = env.run("add-host", "--hostname", "nope")
	assert.Error(t, err)
}

func TestCredentialsAndRemoval(t *testing.T) {
	env := newCLIEnv(t)

	assert.Equal(t, "1\n", env.mustRun("add-cred", "--domain", "CORP", "--user", "alice", "--password", "pw"))
	assert.Equal(t, "2\n", env.mustRun("add-user", "--domain", "CORP", "--user", "bob"))

	out := env.mustRun("creds", "ali")
	assert.Contains(t, out, "alice")
	assert.NotContains(t, out, "bob")

	_, err := env.run("rm-creds", "1", "x", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"x"`)
	assert.Contains(t, err.Error(), `"0"`)
	assert.Contains(t, env.mustRun("creds"), "alice", "a rejected batch removes nothing")

	env.mustRun("rm-creds", "1")
	out = env.mustRun("creds")
	assert.NotContains(t, out, "alice")
	assert.Contains(t, out, "bob")
}

func TestSharesByAccess(t *testing.T) {
	env := newCLIEnv(t)

	env.mustRun("add-host", "--ip", "10.0.0.20")
	env.mustRun("add-user", "--domain", "CORP", "--user", "alice")
	env.mustRun("add-share", "--host-id", "1", "--user-id", "1", "--name", "data", "--read", "--write")
	env.mustRun("add-share", "--host-id", "1", "--user-id", "1", "--name", "IPC$", "--read")

	out := env.mustRun("shares", "--access", "rw")
	assert.Contains(t, out, "data")
	assert.NotContains(t, out, "IPC$")

	assert.Equal(t, "1\n", env.mustRun("share-users", "--host-id", "1", "--name", "data", "--access", "w"))

	_, err := env.run("shares", "--access", "x")
	assert.Error(t, err)
}

func TestAdminAndLoggedIn(t *testing.T) {
	env := newCLIEnv(t)

	env.mustRun("add-host", "--ip", "10.0.0.30")
	env.mustRun("add-cred", "--domain", "CORP", "--user", "admin", "--password", "P@ss")

	assert.Equal(t, "1\n", env.mustRun("admin", "add", "--domain", "CORP", "--user", "admin", "--password", "P@ss", "--host", "10.0.0.%"))
	assert.Contains(t, env.mustRun("admin", "list", "--host-id", "1"), "1")

	env.mustRun("admin", "rm", "--user-id", "1")
	out := env.mustRun("admin", "list")
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(out), "\n")+1, "only the header remains: %q", out)

	assert.Equal(t, "1\n", env.mustRun("loggedin", "add", "--user-id", "1", "--host-id", "1"))
	_, err := env.run("loggedin", "add", "--user-id", "1", "--host-id", "5")
	assert.Error(t, err)
}

func TestExportImport(t *testing.T) {
	src := newCLIEnv(t)
	src.mustRun("add-host", "--ip", "10.0.0.40", "--hostname", "FS01", "--domain", "CORP")
	src.mustRun("add-group", "--domain", "CORP", "--name", "IT")
	src.mustRun("add-cred", "--domain", "CORP", "--user", "carol", "--password", "pw", "--group-id", "1")

	exported := filepath.Join(src.dir, "snapshot.yaml")
	src.mustRun("export", "--format", "yaml", "--output", exported)

	dst := newCLIEnv(t)
	out := dst.mustRun("import", "--format", "yaml", exported)
	assert.Contains(t, out, "4 rows replayed, 0 skipped")

	assert.Contains(t, dst.mustRun("hosts"), "FS01")
	assert.Contains(t, dst.mustRun("members", "--group-id", "1"), "1")

	inventory := src.mustRun("export", "--format", "ansible-inventory")
	assert.Contains(t, inventory, "ansible_host: 10.0.0.40")

	_, err := src.run("export", "--format", "csv")
	assert.Error(t, err)
}

func TestImportNmap(t *testing.T) {
	env := newCLIEnv(t)

	report := filepath.Join("..", "..", "internal", "ingest", "testdata", "smb-scan.xml")
	out := env.mustRun("import-nmap", report)
	assert.Contains(t, out, "3 hosts, 2 recorded, 1 skipped")

	out = env.mustRun("hosts", "dc")
	assert.Contains(t, out, "DC01")
	assert.NotContains(t, out, "ws25")
}

func TestMetricsTextfileWritten(t *testing.T) {
	env := newCLIEnv(t)

	env.mustRun("add-host", "--ip", "10.0.0.50")

	data, err := os.ReadFile(env.metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), `reconstore_records_total{entity="computer",outcome="inserted"} 1`)
}

func TestConfigShow(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun("config", "show")
	assert.Contains(t, out, env.config)
	assert.Contains(t, out, env.dbPath)

	_, err := os.Stat(env.dbPath)
	assert.True(t, os.IsNotExist(err), "config show must not create the store")
}

func TestWatchImportsExistingReports(t *testing.T) {
	env := newCLIEnv(t)

	reports := filepath.Join(env.dir, "reports")
	require.NoError(t, os.Mkdir(reports, 0755))
	data, err := os.ReadFile(filepath.Join("..", "..", "internal", "ingest", "testdata", "smb-scan.xml"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(reports, "smb-scan.xml"), data, 0644))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var out bytes.Buffer
	app := newApp(ctx, &out)
	err = app.Run([]string{"reconstore", "--config", env.config, "watch", "--existing", reports})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "1 existing reports imported")

	hosts := env.mustRun("hosts")
	assert.Contains(t, hosts, "10.0.0.25")

	_, err = env.run("watch")
	assert.Error(t, err)
}
