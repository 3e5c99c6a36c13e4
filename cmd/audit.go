// cmd/audit.go

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/xhunter101/cis-benchmark-tool/pkg/audit"
	"github.com/xhunter101/cis-benchmark-tool/pkg/report"
	"github.com/xhunter101/cis-benchmark-tool/pkg/utils"
)

// newAuditCmd creates the audit subcommand
func newAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Audit the local host",
		Long: `Evaluates every benchmark rule on the local host and prints the results
per category. Reports are also written in the formats selected with --format.
A completed audit exits with status 0 whatever its compliance.`,
		Args: cobra.NoArgs,
		RunE: runAudit,
	}
}

// runAudit audits the local host
func runAudit(cmd *cobra.Command, args []string) error {
	setup, err := newAuditSetup(cmd.Flags())
	if err != nil {
		return err
	}
	cfg := setup.cfg

	if !utils.RunningAsRoot() {
		fmt.Println("WARNING: This tool should be run with root/sudo privileges for complete results.")
		fmt.Println("Rules that cannot read protected files will be reported as failed.")
	}

	exec := utils.NewLocalExecutor()

	var bar *progressbar.ProgressBar
	system, categories := setup.newSystemRunner(setup.logger, exec, func(audit.CheckEvent) {
		if bar != nil {
			bar.Add(1)
		}
	})
	total := plannedChecks(system, categories, cfg.Checks)

	fmt.Printf("Starting CIS audit of %s (%d rules)...\n", exec.Hostname(), total)
	startTime := time.Now()
	bar = newProgressBar(total, "[cyan]Evaluating rules[reset]")

	result := system.Run(cmd.Context())
	result.Hostname = exec.Hostname()

	bar.Finish()
	fmt.Printf("Audit completed in %s!\n\n", time.Since(startTime).Round(time.Millisecond))

	if err := writeReports(result, cfg.Output.Dir, cfg.Output.Formats, setup); err != nil {
		return err
	}
	if result.Interrupted {
		return fmt.Errorf("audit interrupted, report is partial: %w", context.Cause(cmd.Context()))
	}
	return nil
}

// writeReports prints the console report and writes the file formats
func writeReports(result *audit.Report, dir string, formats []string, setup *auditSetup) error {
	if setup.cfg.WantsFormat("console") {
		console := &report.ConsoleReport{
			Out:        os.Stdout,
			NoColor:    noColor,
			Verbose:    verbose,
			FailedOnly: failedOnly,
		}
		if err := console.Render(result); err != nil {
			return fmt.Errorf("failed to print report: %w", err)
		}
		fmt.Println()
	}

	base := reportBaseName(result.Hostname, result.StartedAt)
	written, err := report.WriteFiles(dir, base, result, formats)
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if len(written) == 0 {
		return nil
	}

	if !setup.cfg.Compress.Enabled {
		for _, path := range written {
			fmt.Printf("Report saved to: %s\n", path)
		}
		return nil
	}

	zipPath := filepath.Join(dir, base+".zip")
	if _, err := utils.CompressWithPassword(zipPath, setup.cfg.Compress.Password, written...); err != nil {
		fmt.Printf("Warning: failed to compress reports: %v\n", err)
		for _, path := range written {
			fmt.Printf("Report saved to: %s\n", path)
		}
		return nil
	}
	for _, path := range written {
		os.Remove(path)
	}
	fmt.Printf("Reports saved to password protected archive: %s\n", zipPath)
	return nil
}
