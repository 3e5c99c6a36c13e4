// pkg/checks/probe/config.go

package probe

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// Directives is a parsed whitespace separated "Keyword value" file such as
// sshd_config or login.defs. Keywords are case-insensitive and the first
// occurrence wins.
type Directives map[string]string

// ParseDirectives parses content up to the first Match block
func ParseDirectives(content string) Directives {
	d := make(Directives)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		key := strings.ToLower(fields[0])
		if key == "match" {
			break
		}
		if _, seen := d[key]; seen {
			continue
		}
		d[key] = strings.Join(fields[1:], " ")
	}
	return d
}

// Get returns the value of a keyword
func (d Directives) Get(key string) (string, bool) {
	v, ok := d[strings.ToLower(key)]
	return v, ok
}

// Expect validates one configuration value
type Expect func(value string) error

// Equals accepts any of want, case-insensitively
func Equals(want ...string) Expect {
	return func(value string) error {
		for _, w := range want {
			if strings.EqualFold(strings.TrimSpace(value), w) {
				return nil
			}
		}
		return fmt.Errorf("is %q, expected %s", value, strings.Join(want, " or "))
	}
}

// AtMost accepts integers no greater than max
func AtMost(max int) Expect {
	return func(value string) error {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("is %q, not a number", value)
		}
		if n > max {
			return fmt.Errorf("is %d, expected at most %d", n, max)
		}
		return nil
	}
}

// AtLeast accepts integers no smaller than min
func AtLeast(min int) Expect {
	return func(value string) error {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("is %q, not a number", value)
		}
		if n < min {
			return fmt.Errorf("is %d, expected at least %d", n, min)
		}
		return nil
	}
}

// Between accepts integers in [min, max]
func Between(min, max int) Expect {
	return func(value string) error {
		if err := AtLeast(min)(value); err != nil {
			return err
		}
		return AtMost(max)(value)
	}
}

// ExcludesAll rejects comma separated lists that name any of items
func ExcludesAll(items ...string) Expect {
	return func(value string) error {
		var found []string
		for _, entry := range strings.Split(value, ",") {
			entry = strings.ToLower(strings.TrimSpace(entry))
			for _, item := range items {
				if entry == strings.ToLower(item) {
					found = append(found, entry)
				}
			}
		}
		if len(found) > 0 {
			return fmt.Errorf("includes weak entries %s", strings.Join(found, ", "))
		}
		return nil
	}
}

// NotEmpty accepts any non-blank value
func NotEmpty() Expect {
	return func(value string) error {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("is empty")
		}
		return nil
	}
}

// directive evaluates one keyword of a parsed file
func directive(source string, d Directives, key string, expect Expect, def string) Outcome {
	value, ok := d.Get(key)
	if !ok {
		if def == "" {
			return Fail("%s is not set in %s", key, source)
		}
		value = def
	}
	if err := expect(value); err != nil {
		return Fail("%s %s (%s)", key, err, source)
	}
	return Pass("%s is %s", key, value)
}

// SSHD checks one sshd keyword. The effective configuration from "sshd -T"
// is preferred; the main configuration file is used when it is unavailable.
// def is the built-in default applied to an unset keyword; empty makes an
// unset keyword fail.
func SSHD(key string, expect Expect, def string) Probe {
	return func(ctx context.Context, env *Env) Outcome {
		d, source, err := env.sshdConfig(ctx)
		if err != nil {
			return fault(ctx, "sshd configuration", err)
		}
		if d == nil {
			return Pass("openssh-server is not installed")
		}
		return directive(source, d, key, expect, def)
	}
}

func (e *Env) sshdConfig(ctx context.Context) (Directives, string, error) {
	res, err := e.run(ctx, "sshd", "-T")
	if err == nil && res.Success() && res.Output() != "" {
		return ParseDirectives(res.Stdout), "sshd -T", nil
	}
	const path = "/etc/ssh/sshd_config"
	content, ok, err := e.readFile(ctx, path)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", nil
	}
	return ParseDirectives(content), path, nil
}

// LoginDefs checks one keyword of /etc/login.defs
func LoginDefs(key string, expect Expect) Probe {
	const path = "/etc/login.defs"
	return File(path, func(content string) Outcome {
		return directive(path, ParseDirectives(content), key, expect, "")
	}, nil)
}

// ParseKeyValue parses an INI style "key = value" file. Files without
// sections land in the default section.
func ParseKeyValue(content string) (*ini.File, error) {
	return ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys:         true,
		SpaceBeforeInlineComment: true,
	}, []byte(content))
}

// KeyValue checks key in section of an INI style file; section "" is the
// part before any section header. def applies when the key is unset.
func KeyValue(path, section, key string, expect Expect, def string) Probe {
	return func(ctx context.Context, env *Env) Outcome {
		content, ok, err := env.readFile(ctx, path)
		if err != nil {
			return fault(ctx, path, err)
		}
		if !ok {
			return Fail("%s does not exist", path)
		}
		return keyValue(path, content, section, key, expect, def)
	}
}

func keyValue(path, content, section, key string, expect Expect, def string) Outcome {
	file, err := ParseKeyValue(content)
	if err != nil {
		return Fail("unable to parse %s: %v", path, err)
	}
	if section == "" {
		section = ini.DefaultSection
	}

	value := def
	found := false
	if sec, err := file.GetSection(section); err == nil && sec.HasKey(key) {
		value = sec.Key(key).String()
		found = true
	}
	if !found && def == "" {
		return Fail("%s is not set in %s", key, path)
	}
	if err := expect(value); err != nil {
		return Fail("%s %s (%s)", key, err, path)
	}
	return Pass("%s is %s", key, value)
}
