// pkg/config/hosts_config.go

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// HostsConfig represents the inventory of hosts for a multi-host audit
type HostsConfig struct {
	Defaults DefaultConfig
	Hosts    []HostEntry
	Groups   map[string][]HostEntry
}

// DefaultConfig holds default settings for all hosts
type DefaultConfig struct {
	User                string
	Port                string
	Password            string
	SSHKeyFile          string
	SSHTimeout          int
	ParallelConnections int
	Become              bool
	BecomeUser          string
}

// HostEntry represents a single host configuration
type HostEntry struct {
	Hostname   string
	Port       string
	User       string
	Password   string
	SSHKeyFile string
	Group      string
	Become     bool
	BecomeUser string
	Timeout    time.Duration

	becomeSet bool
}

// NewHostsConfig creates a new hosts configuration with defaults
func NewHostsConfig() *HostsConfig {
	return &HostsConfig{
		Defaults: DefaultConfig{
			User:                "root",
			Port:                "22",
			SSHTimeout:          30,
			ParallelConnections: 5,
			BecomeUser:          "root",
		},
		Groups: make(map[string][]HostEntry),
	}
}

// LoadFromFile loads the inventory from an INI file. Each section other than
// [defaults] (or [all:vars]) is a host group; each line of a group is a host
// followed by optional key=value variables. A host listed in several groups
// belongs to each of them but appears once in Hosts, with the variables of
// its first listing.
func (hc *HostsConfig) LoadFromFile(filename string) error {
	file, err := ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys:         true,
		KeyValueDelimiters:       "=",
		SpaceBeforeInlineComment: true,
	}, filename)
	if err != nil {
		return fmt.Errorf("failed to load hosts file: %w", err)
	}

	for _, section := range file.Sections() {
		if isDefaultsSection(section.Name()) {
			hc.parseDefaults(section)
		}
	}

	listed := make(map[string]bool, len(hc.Hosts))
	for _, host := range hc.Hosts {
		listed[host.Hostname] = true
	}

	for _, section := range file.Sections() {
		name := section.Name()
		if isDefaultsSection(name) {
			continue
		}
		group := name
		if name == ini.DefaultSection {
			group = ""
		} else if _, exists := hc.Groups[group]; !exists {
			hc.Groups[group] = []HostEntry{}
		}

		for _, key := range section.Keys() {
			host, err := parseHostLine(hostLine(key), group)
			if err != nil {
				return fmt.Errorf("section [%s]: %w", name, err)
			}
			hc.applyDefaultsToHost(&host)

			if !listed[host.Hostname] {
				listed[host.Hostname] = true
				hc.Hosts = append(hc.Hosts, host)
			}
			if group != "" {
				hc.Groups[group] = append(hc.Groups[group], host)
			}
		}
	}

	return nil
}

func isDefaultsSection(name string) bool {
	return name == "defaults" || name == "all:vars"
}

// hostLine rebuilds the raw inventory line. "host user=x" is split by the INI
// parser into key "host user" and value "x", while "host = user=x" keeps the
// host name as the key.
func hostLine(key *ini.Key) string {
	name := key.Name()
	value := key.Value()
	if strings.ContainsAny(name, " \t") {
		return name + "=" + value
	}
	return name + " " + value
}

// parseDefaults reads the [defaults] section
func (hc *HostsConfig) parseDefaults(section *ini.Section) {
	for _, key := range section.Keys() {
		value := unquote(key.Value())
		switch key.Name() {
		case "user", "ssh_user":
			hc.Defaults.User = value
		case "port", "ssh_port":
			hc.Defaults.Port = value
		case "password", "ssh_password":
			hc.Defaults.Password = value
		case "ssh_key_file", "ssh_key":
			hc.Defaults.SSHKeyFile = expandPath(value)
		case "ssh_timeout", "timeout":
			if timeout, err := strconv.Atoi(value); err == nil {
				hc.Defaults.SSHTimeout = timeout
			}
		case "parallel_connections", "parallel":
			if parallel, err := strconv.Atoi(value); err == nil {
				hc.Defaults.ParallelConnections = parallel
			}
		case "become":
			hc.Defaults.Become = parseBool(value)
		case "become_user":
			hc.Defaults.BecomeUser = value
		}
	}
}

// parseHostLine parses "hostname [key=value ...]"
func parseHostLine(line string, group string) (HostEntry, error) {
	host := HostEntry{Group: group}

	parts := strings.Fields(line)
	if len(parts) == 0 || strings.Contains(parts[0], "=") {
		return host, fmt.Errorf("invalid host line %q", line)
	}
	host.Hostname = parts[0]

	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		value = unquote(value)

		switch strings.TrimSpace(key) {
		case "user", "ssh_user":
			host.User = value
		case "port", "ssh_port":
			host.Port = value
		case "password", "ssh_password":
			host.Password = value
		case "ssh_key_file", "ssh_key":
			host.SSHKeyFile = expandPath(value)
		case "become":
			host.Become = parseBool(value)
			host.becomeSet = true
		case "become_user":
			host.BecomeUser = value
		}
	}

	return host, nil
}

// applyDefaultsToHost applies default values to a host entry
func (hc *HostsConfig) applyDefaultsToHost(host *HostEntry) {
	if host.Port == "" {
		host.Port = hc.Defaults.Port
	}
	if host.User == "" {
		host.User = hc.Defaults.User
	}
	if host.Password == "" {
		host.Password = hc.Defaults.Password
	}
	if host.SSHKeyFile == "" {
		host.SSHKeyFile = hc.Defaults.SSHKeyFile
	}
	if !host.becomeSet {
		host.Become = hc.Defaults.Become
	}
	if host.BecomeUser == "" {
		host.BecomeUser = hc.Defaults.BecomeUser
	}
	host.Timeout = time.Duration(hc.Defaults.SSHTimeout) * time.Second
}

// GetAllHosts returns all configured hosts
func (hc *HostsConfig) GetAllHosts() []HostEntry {
	return hc.Hosts
}

// GetHostsByGroup returns hosts in a specific group
func (hc *HostsConfig) GetHostsByGroup(group string) []HostEntry {
	return hc.Groups[group]
}

// GetHost returns a specific host by name
func (hc *HostsConfig) GetHost(hostname string) (*HostEntry, bool) {
	for _, host := range hc.Hosts {
		if host.Hostname == hostname {
			return &host, true
		}
	}
	return nil, false
}

// expandPath expands ~ and environment variables in file paths
func expandPath(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

func unquote(value string) string {
	return strings.Trim(strings.TrimSpace(value), "\"'`")
}

// parseBool parses various boolean representations
func parseBool(value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	return value == "true" || value == "yes" || value == "1" || value == "on"
}
