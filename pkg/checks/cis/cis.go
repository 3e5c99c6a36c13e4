// pkg/checks/cis/cis.go

// Package cis is the benchmark catalogue: every rule, grouped into the
// benchmark's categories and sections, bound to the probe that decides it.
package cis

import (
	"github.com/xhunter101/cis-benchmark-tool/pkg/audit"
	"github.com/xhunter101/cis-benchmark-tool/pkg/checks/probe"
)

const (
	low    = audit.SeverityLow
	medium = audit.SeverityMedium
	high   = audit.SeverityHigh
)

// entry pairs a rule with its probe
type entry struct {
	rule  probe.Rule
	probe probe.Probe
}

func rule(id string, sev audit.Severity, key, title string, p probe.Probe) entry {
	return entry{
		rule:  probe.Rule{ID: id, Title: title, Severity: sev, Key: key},
		probe: p,
	}
}

// section is a sub-category of the benchmark
type section struct {
	name    string
	entries []entry
}

// chapter is a top-level category of the benchmark
type chapter struct {
	name     string
	sections []section
}

// chapters returns the benchmark in run order
func chapters() []chapter {
	return []chapter{
		initialSetup(),
		services(),
		network(),
		hostFirewall(),
		accessControl(),
		loggingAndAuditing(),
		systemMaintenance(),
	}
}

// Categories builds the runnable categories, bound to env, in benchmark order
func Categories(env *probe.Env) []*audit.Category {
	var categories []*audit.Category
	for _, ch := range chapters() {
		category := audit.NewCategory(ch.name)
		for _, sec := range ch.sections {
			sub := audit.NewCategory(sec.name)
			for _, e := range sec.entries {
				e := e
				sub.Registry.MustRegister(e.rule.ID, func() (audit.Check, error) {
					return e.rule.Check(env, e.probe), nil
				})
			}
			category.Subcategories = append(category.Subcategories, sub)
		}
		categories = append(categories, category)
	}
	return categories
}

// CatalogEntry describes one rule for listings
type CatalogEntry struct {
	Category string
	Section  string
	Rule     probe.Rule
}

// Catalog lists every rule in run order
func Catalog() []CatalogEntry {
	var out []CatalogEntry
	for _, ch := range chapters() {
		for _, sec := range ch.sections {
			for _, e := range sec.entries {
				out = append(out, CatalogEntry{Category: ch.name, Section: sec.name, Rule: e.rule})
			}
		}
	}
	return out
}

// Known reports whether id names a rule of the catalogue
func Known(id string) bool {
	for _, e := range Catalog() {
		if e.Rule.ID == id {
			return true
		}
	}
	return false
}
