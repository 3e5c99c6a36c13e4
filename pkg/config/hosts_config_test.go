package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const inventory = `
# fleet inventory
[defaults]
user = auditor
port = 2222
ssh_timeout = 10
parallel = 3
become = yes

[web_hosts]
web1.example.com user=admin port=22
web2.example.com

[db_hosts]
db1.example.com = become=no become_user=postgres ; primary
`

func writeInventory(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hosts")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestHostsConfig_LoadFromFile(t *testing.T) {
	hc := NewHostsConfig()
	require.NoError(t, hc.LoadFromFile(writeInventory(t, inventory)))

	assert.Equal(t, "auditor", hc.Defaults.User)
	assert.Equal(t, 3, hc.Defaults.ParallelConnections)
	assert.True(t, hc.Defaults.Become)

	require.Len(t, hc.GetAllHosts(), 3)
	assert.Len(t, hc.GetHostsByGroup("web_hosts"), 2)
	assert.Len(t, hc.GetHostsByGroup("db_hosts"), 1)

	web1, ok := hc.GetHost("web1.example.com")
	require.True(t, ok)
	assert.Equal(t, "admin", web1.User)
	assert.Equal(t, "22", web1.Port)
	assert.True(t, web1.Become)
	assert.Equal(t, 10*time.Second, web1.Timeout)

	web2, ok := hc.GetHost("web2.example.com")
	require.True(t, ok)
	assert.Equal(t, "auditor", web2.User)
	assert.Equal(t, "2222", web2.Port)
	assert.Equal(t, "web_hosts", web2.Group)

	db1, ok := hc.GetHost("db1.example.com")
	require.True(t, ok)
	assert.False(t, db1.Become)
	assert.Equal(t, "postgres", db1.BecomeUser)

	_, ok = hc.GetHost("missing.example.com")
	assert.False(t, ok)
}

func TestHostsConfig_UngroupedHosts(t *testing.T) {
	hc := NewHostsConfig()
	require.NoError(t, hc.LoadFromFile(writeInventory(t, "lonely.example.com\n")))

	require.Len(t, hc.Hosts, 1)
	assert.Equal(t, "", hc.Hosts[0].Group)
	assert.Equal(t, "root", hc.Hosts[0].User)
	assert.Equal(t, "22", hc.Hosts[0].Port)
	assert.Empty(t, hc.Groups)
}

func TestHostsConfig_HostInSeveralGroups(t *testing.T) {
	hc := NewHostsConfig()
	require.NoError(t, hc.LoadFromFile(writeInventory(t, `
[web_hosts]
app1.example.com user=web
app2.example.com

[prod]
app1.example.com user=ops
`)))

	all := hc.GetAllHosts()
	require.Len(t, all, 2)
	assert.Equal(t, "app1.example.com", all[0].Hostname)
	assert.Equal(t, "web", all[0].User)
	assert.Equal(t, "web_hosts", all[0].Group)

	assert.Len(t, hc.GetHostsByGroup("web_hosts"), 2)
	require.Len(t, hc.GetHostsByGroup("prod"), 1)
	assert.Equal(t, "ops", hc.GetHostsByGroup("prod")[0].User)
}

func TestHostsConfig_MissingFile(t *testing.T) {
	hc := NewHostsConfig()
	err := hc.LoadFromFile(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorContains(t, err, "failed to load hosts file")
}

func TestParseHostLine(t *testing.T) {
	host, err := parseHostLine(`srv ssh_key="~/keys/id" become=true`, "g")
	require.NoError(t, err)
	assert.Equal(t, "srv", host.Hostname)
	assert.True(t, host.Become)
	assert.NotContains(t, host.SSHKeyFile, "~")

	_, err = parseHostLine("user=admin", "g")
	assert.Error(t, err)
}
