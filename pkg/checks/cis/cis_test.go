package cis

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhunter101/cis-benchmark-tool/pkg/audit"
	"github.com/xhunter101/cis-benchmark-tool/pkg/checks/probe"
	"github.com/xhunter101/cis-benchmark-tool/pkg/checks/probe/probetest"
)

func findRule(t *testing.T, id string) entry {
	t.Helper()
	for _, ch := range chapters() {
		for _, sec := range ch.sections {
			for _, e := range sec.entries {
				if e.rule.ID == id {
					return e
				}
			}
		}
	}
	t.Fatalf("rule %s not in catalogue", id)
	return entry{}
}

func evaluate(t *testing.T, host *probetest.Executor, id string) probe.Outcome {
	t.Helper()
	return findRule(t, id).probe(context.Background(), probe.NewEnv(host))
}

func installed(host *probetest.Executor, pkgs ...string) *probetest.Executor {
	for _, p := range pkgs {
		host.Command("installed", 0, "dpkg-query", "-W", "-f=${db:Status-Status}", p)
	}
	return host
}

func notInstalled(host *probetest.Executor, pkgs ...string) *probetest.Executor {
	for _, p := range pkgs {
		host.Command("", 1, "dpkg-query", "-W", "-f=${db:Status-Status}", p)
	}
	return host
}

func unit(host *probetest.Executor, name, enabled, active string) *probetest.Executor {
	return host.
		Command(enabled+"\n", 0, "systemctl", "is-enabled", name).
		Command(active+"\n", 0, "systemctl", "is-active", name)
}

func TestCatalog_Integrity(t *testing.T) {
	catalog := Catalog()
	require.NotEmpty(t, catalog)

	ids := make(map[string]bool)
	keys := make(map[string]bool)
	for _, e := range catalog {
		assert.False(t, ids[e.Rule.ID], "duplicate id %s", e.Rule.ID)
		assert.False(t, keys[e.Rule.Key], "duplicate key %s", e.Rule.Key)
		ids[e.Rule.ID] = true
		keys[e.Rule.Key] = true

		assert.True(t, strings.HasPrefix(e.Rule.Title, "Ensure "), "%s title %q", e.Rule.ID, e.Rule.Title)
		assert.Contains(t, []audit.Severity{low, medium, high}, e.Rule.Severity, e.Rule.ID)
		assert.NotEmpty(t, e.Section)
	}
}

func TestCatalog_IDsFollowChapters(t *testing.T) {
	for i, ch := range chapters() {
		prefix := strconv.Itoa(i+1) + "."
		for _, sec := range ch.sections {
			for _, e := range sec.entries {
				assert.True(t, strings.HasPrefix(e.rule.ID, prefix), "%s is filed under %s", e.rule.ID, ch.name)
			}
		}
	}
}

func TestCategories_Order(t *testing.T) {
	categories := Categories(probe.NewEnv(probetest.NewExecutor()))

	var names []string
	total := 0
	for _, c := range categories {
		names = append(names, c.Name)
		total += c.CountChecks()
		assert.NotEmpty(t, c.Subcategories)
	}
	assert.Equal(t, []string{
		"Initial Setup", "Services", "Network", "Host Based Firewall",
		"Access Control", "Logging and Auditing", "System Maintenance",
	}, names)
	assert.Equal(t, len(Catalog()), total)
}

func TestKnown(t *testing.T) {
	assert.True(t, Known("5.1.20"))
	assert.True(t, Known("1.1.2.2.4"))
	assert.False(t, Known("9.9.9"))
	assert.False(t, Known(""))
}

// An empty host is the worst case: nothing can be inspected. Every rule must
// still produce exactly one result and the run must stay well formed.
func TestSystemRun_EmptyHost(t *testing.T) {
	logger := zerolog.Nop()
	runner := audit.NewRunner(logger, audit.Options{Workers: 4})
	categories := Categories(probe.NewEnv(probetest.NewExecutor()))

	report := audit.NewSystemRunnerFor(logger, runner, categories...).Run(context.Background())

	assert.Empty(t, report.Diagnostics)
	assert.Len(t, report.Categories, 7)
	assert.Equal(t, len(Catalog()), report.Summary.Total)
	assert.True(t, report.Summary.Consistent())
	for _, e := range Catalog() {
		results := report.Results[e.Category]
		require.Contains(t, results, e.Rule.Key, e.Rule.ID)
		assert.NotEmpty(t, results[e.Rule.Key].Narrative, e.Rule.ID)
	}
}

func TestSystemRun_Filtered(t *testing.T) {
	logger := zerolog.Nop()
	runner := audit.NewRunner(logger, audit.Options{Checks: []string{"5.1.20", "7.2.5"}})
	categories := Categories(probe.NewEnv(probetest.NewExecutor()))

	report := audit.NewSystemRunnerFor(logger, runner, categories...).
		WithFilter([]string{"access-control", "system_maintenance"}, nil).
		Run(context.Background())

	assert.Equal(t, []string{"Access Control", "System Maintenance"}, report.Categories)
	assert.Equal(t, 2, report.Summary.Total)
	assert.Contains(t, report.Results["Access Control"], "sshd_permit_root_login_configuration")
	assert.Contains(t, report.Results["System Maintenance"], "duplicate_uids_check")
}
