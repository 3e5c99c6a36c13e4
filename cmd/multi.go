// cmd/multi.go

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xhunter101/cis-benchmark-tool/pkg/config"
	"github.com/xhunter101/cis-benchmark-tool/pkg/report"
	"github.com/xhunter101/cis-benchmark-tool/pkg/utils"
)

// newMultiCmd creates the multi-host subcommand
func newMultiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "multi",
		Short: "Audit multiple hosts over SSH",
		Long: `Audits every host of an INI inventory over SSH. Each host gets its own
AsciiDoc and JSON report; a fleet summary and a critical issues report are
written next to them.`,
		Args: cobra.NoArgs,
		RunE: runMultiHostCommand,
	}

	cmd.Flags().String("hosts-file", "hosts.ini", "Path to hosts inventory file")
	cmd.Flags().Int("max-parallel", 0, "Maximum number of hosts audited at once (default from inventory)")

	return cmd
}

func runMultiHostCommand(cmd *cobra.Command, args []string) error {
	hostsFilePath, _ := cmd.Flags().GetString("hosts-file")
	maxParallel, _ := cmd.Flags().GetInt("max-parallel")
	return runMultiHost(cmd, hostsFilePath, maxParallel)
}

// hostResult is the outcome of one host of a multi-host run
type hostResult struct {
	hostname   string
	reportPath string
	err        error
	duration   time.Duration
}

// runMultiHost audits every inventory host with bounded parallelism
func runMultiHost(cmd *cobra.Command, hostsFilePath string, maxParallel int) error {
	setup, err := newAuditSetup(cmd.Flags())
	if err != nil {
		return err
	}

	hostsConfig := config.NewHostsConfig()
	if err := hostsConfig.LoadFromFile(hostsFilePath); err != nil {
		return fmt.Errorf("failed to load hosts file: %w", err)
	}
	if maxParallel > 0 {
		hostsConfig.Defaults.ParallelConnections = maxParallel
	}

	allHosts := hostsConfig.GetAllHosts()
	if len(allHosts) == 0 {
		return fmt.Errorf("no hosts found in configuration file")
	}

	fmt.Printf("\n")
	fmt.Printf("╔══════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Multi-Host CIS Audit Execution         ║\n")
	fmt.Printf("╚══════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
	fmt.Printf("Hosts to audit:       %d\n", len(allHosts))
	fmt.Printf("Parallel connections: %d\n", hostsConfig.Defaults.ParallelConnections)
	fmt.Printf("\n")

	timestamp := time.Now().Format("20060102-150405")
	baseOutputDir := filepath.Join(setup.cfg.Output.Dir, fmt.Sprintf("multi-host-%s", timestamp))
	hostsOutputDir := filepath.Join(baseOutputDir, "hosts")
	if err := os.MkdirAll(hostsOutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directories: %w", err)
	}

	summaryReport := report.NewSummaryReport(baseOutputDir)
	bar := newProgressBar(len(allHosts), "[cyan]Auditing hosts[reset]")

	var (
		mu      sync.Mutex
		results []hostResult
	)

	startTime := time.Now()
	var g errgroup.Group
	g.SetLimit(max(hostsConfig.Defaults.ParallelConnections, 1))

	for _, host := range allHosts {
		host := host
		g.Go(func() error {
			result := setup.auditRemoteHost(cmd.Context(), host, hostsOutputDir)
			if result.err != nil {
				summaryReport.AddFailedHost(host.Hostname, result.err)
			}

			mu.Lock()
			results = append(results, result)
			mu.Unlock()

			bar.Add(1)
			return nil
		})
	}
	g.Wait()
	bar.Finish()

	for _, result := range results {
		if result.err == nil {
			loaded, err := report.LoadJSON(jsonPath(result.reportPath))
			if err != nil {
				summaryReport.AddFailedHost(result.hostname, err)
				continue
			}
			summaryReport.AddHostReport(result.hostname, result.reportPath, loaded)
		}
	}

	printHostResults(summaryReport.Hosts(), results)

	fmt.Printf("Generating summary reports...\n")
	paths, err := summaryReport.GenerateAllReports()
	if err != nil {
		return fmt.Errorf("failed to generate summary reports: %w", err)
	}

	fmt.Printf("\nTotal execution time: %s\n", time.Since(startTime).Round(time.Second))
	fmt.Printf("Reports location: %s\n", baseOutputDir)
	for _, path := range paths {
		fmt.Printf("  • %s\n", filepath.Base(path))
	}
	fmt.Printf("  • Individual:   hosts/\n\n")

	if err := cmd.Context().Err(); err != nil {
		return fmt.Errorf("multi-host audit interrupted, reports are partial: %w", err)
	}
	return nil
}

// auditRemoteHost connects to one host, audits it and writes its reports
func (s *auditSetup) auditRemoteHost(ctx context.Context, host config.HostEntry, outputDir string) hostResult {
	hostStart := time.Now()
	result := hostResult{hostname: host.Hostname}
	logger := s.logger.With().Str("host", host.Hostname).Logger()

	sshConfig := &utils.SSHConfig{
		Host:       host.Hostname,
		Port:       host.Port,
		User:       host.User,
		Password:   host.Password,
		KeyFile:    host.SSHKeyFile,
		Timeout:    host.Timeout,
		Become:     host.Become,
		BecomeUser: host.BecomeUser,
	}

	exec, err := utils.NewRemoteExecutor(ctx, sshConfig)
	if err != nil {
		logger.Error().Err(err).Msg("connection failed")
		result.err = err
		result.duration = time.Since(hostStart)
		return result
	}
	defer exec.Close()

	system, _ := s.newSystemRunner(logger, exec, nil)
	audited := system.Run(ctx)
	audited.Hostname = exec.Hostname()

	base := sanitizeFilename(host.Hostname) + "-cis-audit"
	if _, err := report.WriteFiles(outputDir, base, audited, []string{report.FormatAsciiDoc, report.FormatJSON}); err != nil {
		result.err = err
	}

	result.reportPath = filepath.Join(outputDir, base+"."+report.FormatAsciiDoc)
	result.duration = time.Since(hostStart)
	return result
}

// jsonPath returns the JSON copy written next to an AsciiDoc report
func jsonPath(adocPath string) string {
	return adocPath[:len(adocPath)-len(filepath.Ext(adocPath))] + "." + report.FormatJSON
}

func printHostResults(hosts []*report.HostReport, results []hostResult) {
	byHost := make(map[string]hostResult, len(results))
	for _, result := range results {
		byHost[result.hostname] = result
	}

	fmt.Printf("\n")
	fmt.Printf("╔══════════════════════════════════════════════════╗\n")
	fmt.Printf("║                  Results Summary                 ║\n")
	fmt.Printf("╚══════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	var audited, failed []*report.HostReport
	for _, host := range hosts {
		if host.Report != nil {
			audited = append(audited, host)
		} else {
			failed = append(failed, host)
		}
	}

	if len(audited) > 0 {
		fmt.Printf("✓ Audited (%d):\n", len(audited))
		for _, host := range audited {
			fmt.Printf("  • %-30s %5.1f%% compliant (%s)\n", host.Hostname,
				host.Report.Summary.CompliancePercentage, byHost[host.Hostname].duration.Round(time.Millisecond))
		}
		fmt.Printf("\n")
	}

	if len(failed) > 0 {
		fmt.Printf("✗ Failed (%d):\n", len(failed))
		for _, host := range failed {
			fmt.Printf("  • %-30s %v\n", host.Hostname, host.Err)
		}
		fmt.Printf("\n")
	}
}
