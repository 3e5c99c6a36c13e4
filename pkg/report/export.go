// pkg/report/export.go
// Machine readable copies of an audit report

package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/xhunter101/cis-benchmark-tool/pkg/audit"
)

// Output formats written to files
const (
	FormatAsciiDoc = "adoc"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
)

// SaveJSON writes report to path as indented JSON
func SaveJSON(path string, report *audit.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return writeFile(path, data)
}

// SaveYAML writes report to path as YAML
func SaveYAML(path string, report *audit.Report) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return writeFile(path, data)
}

// LoadJSON reads a report previously written by SaveJSON
func LoadJSON(path string) (*audit.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var report audit.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	if report.Results == nil {
		report.Results = make(map[string]audit.ResultSet)
	}
	return &report, nil
}

// WriteFiles writes report in each of the file formats to dir, named
// <base>.<format>. Unknown formats (such as console) are ignored. The paths
// written are returned in format order.
func WriteFiles(dir, base string, report *audit.Report, formats []string) ([]string, error) {
	var written []string
	for _, format := range formats {
		path := filepath.Join(dir, base+"."+format)

		var err error
		switch format {
		case FormatAsciiDoc:
			_, err = NewAsciiDocReport(path, "", report).Generate()
		case FormatJSON:
			err = SaveJSON(path, report)
		case FormatYAML:
			err = SaveYAML(path, report)
		default:
			continue
		}
		if err != nil {
			return written, fmt.Errorf("%s report: %w", format, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
