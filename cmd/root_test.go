package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhunter101/cis-benchmark-tool/pkg/audit"
	"github.com/xhunter101/cis-benchmark-tool/pkg/checks/cis"
	"github.com/xhunter101/cis-benchmark-tool/pkg/checks/probe"
)

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addAuditFlags(flags)
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "web01.example.com", sanitizeFilename("web01.example.com"))
	assert.Equal(t, "a-b-c_d", sanitizeFilename("a/b:c d"))
	assert.Equal(t, "host", sanitizeFilename("h*o?s\"t"))
}

func TestReportBaseName(t *testing.T) {
	at := time.Date(2026, 10, 17, 9, 5, 3, 0, time.UTC)
	assert.Equal(t, "web01-cis-audit-20261017-090503", reportBaseName("web01", at))
}

func TestValidateChecks(t *testing.T) {
	assert.NoError(t, validateChecks(nil))
	assert.NoError(t, validateChecks([]string{"5.1.20", "7.2.5"}))

	err := validateChecks([]string{"5.1.20", "9.9.9", "0.1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "9.9.9, 0.1")
}

func TestLoadAuditConfig_Defaults(t *testing.T) {
	cfg, err := loadAuditConfig(testFlags(t), "")
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, time.Duration(0), cfg.CheckTimeout)
	assert.Equal(t, "fail", cfg.ManualPolicy)
	assert.Equal(t, []string{"console"}, cfg.Output.Formats)
	assert.Empty(t, cfg.Checks)
}

func TestLoadAuditConfig_FlagsOverride(t *testing.T) {
	flags := testFlags(t,
		"--workers", "4",
		"--check", "5.1.20,7.2.5",
		"--format", "json,adoc",
		"--timeout", "30s",
		"--manual", "exclude",
	)

	cfg, err := loadAuditConfig(flags, "")
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, []string{"5.1.20", "7.2.5"}, cfg.Checks)
	assert.Equal(t, []string{"json", "adoc"}, cfg.Output.Formats)
	assert.Equal(t, 30*time.Second, cfg.CheckTimeout)
	assert.Equal(t, "exclude", cfg.ManualPolicy)
}

func TestLoadAuditConfig_FileThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 2\nskip:\n  - services\noutput:\n  dir: /var/tmp/cis\n"), 0644))

	cfg, err := loadAuditConfig(testFlags(t, "--workers", "8"), path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, []string{"services"}, cfg.Skip)
	assert.Equal(t, "/var/tmp/cis", cfg.Output.Dir)
}

func TestLoadAuditConfig_Invalid(t *testing.T) {
	_, err := loadAuditConfig(testFlags(t, "--format", "pdf"), "")
	assert.ErrorContains(t, err, `unknown output format "pdf"`)
}

func TestPlannedChecks(t *testing.T) {
	categories := cis.Categories(probe.NewEnv(nil))
	runner := audit.NewRunner(zerolog.Nop(), audit.Options{})

	all := audit.NewSystemRunnerFor(zerolog.Nop(), runner, categories...)
	assert.Equal(t, len(cis.Catalog()), plannedChecks(all, categories, nil))

	filtered := audit.NewSystemRunnerFor(zerolog.Nop(), runner, categories...).
		WithFilter([]string{"access-control"}, nil)
	assert.Equal(t, 1, plannedChecks(filtered, categories, []string{"5.1.20", "7.2.5"}))
}

func TestListCommand(t *testing.T) {
	var out bytes.Buffer
	list := newListCmd()
	list.SetOut(&out)
	list.SetArgs([]string{"--category", "network"})

	require.NoError(t, list.Execute())
	assert.Contains(t, out.String(), "3.3.10")
	assert.NotContains(t, out.String(), "5.1.20")
}

func TestListCommand_UnknownCategory(t *testing.T) {
	list := newListCmd()
	list.SetOut(&bytes.Buffer{})
	list.SetErr(&bytes.Buffer{})
	list.SetArgs([]string{"--category", "printing"})

	assert.ErrorContains(t, list.Execute(), `no rules found for category "printing"`)
}

func TestJSONPath(t *testing.T) {
	assert.Equal(t, "/tmp/hosts/web01-cis-audit.json", jsonPath("/tmp/hosts/web01-cis-audit.adoc"))
}
