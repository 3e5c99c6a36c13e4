// cmd/root.go

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/xhunter101/cis-benchmark-tool/pkg/audit"
	"github.com/xhunter101/cis-benchmark-tool/pkg/checks/cis"
	"github.com/xhunter101/cis-benchmark-tool/pkg/checks/probe"
	"github.com/xhunter101/cis-benchmark-tool/pkg/config"
	"github.com/xhunter101/cis-benchmark-tool/pkg/logging"
	"github.com/xhunter101/cis-benchmark-tool/pkg/utils"
)

var (
	configFile string
	hostsFile  string
	verbose    bool
	failedOnly bool
	noColor    bool
	rootCmd    = &cobra.Command{
		Use:   "cis-audit",
		Short: "CIS benchmark compliance audit",
		Long: `Audits a Linux host against the CIS benchmark. Every rule is evaluated
read-only and reported as pass, fail or manual review, grouped into the
benchmark's categories with a compliance percentage per category and overall.

Without a subcommand the local host is audited.`,
		SilenceUsage: true,
		RunE:         runRoot,
	}
)

// flagKeys maps command line flags onto audit configuration keys
var flagKeys = map[string]string{
	"include":    "include",
	"skip":       "skip",
	"check":      "checks",
	"workers":    "workers",
	"timeout":    "check_timeout",
	"manual":     "manual_policy",
	"format":     "output.formats",
	"output":     "output.dir",
	"log-level":  "log.level",
	"log-format": "log.format",
	"compress":   "compress.enabled",
	"password":   "compress.password",
}

// Execute executes the root command
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "Audit configuration file (yaml, toml or json)")
	addAuditFlags(flags)
	flags.BoolVarP(&verbose, "verbose", "v", false, "Show the observation of passing rules too")
	flags.BoolVar(&failedOnly, "failed-only", false, "Hide passing rules in console output")
	flags.BoolVar(&noColor, "no-color", false, "Disable colored console output")
	rootCmd.Flags().StringVarP(&hostsFile, "hosts", "H", "", "Hosts inventory; audits every listed host over SSH")

	rootCmd.AddCommand(newAuditCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newMultiCmd())
}

// addAuditFlags registers the flags that override audit configuration keys
func addAuditFlags(flags *pflag.FlagSet) {
	flags.StringSliceP("include", "i", nil, "Only run the specified categories")
	flags.StringSliceP("skip", "s", nil, "Categories to skip")
	flags.StringSlice("check", nil, "Only run the specified rule ids, e.g. 5.1.1")
	flags.IntP("workers", "w", 1, "Checks of a category run at once")
	flags.DurationP("timeout", "t", 0, "Timeout for an individual check (0 disables)")
	flags.String("manual", "fail", "How manual review results count: fail or exclude")
	flags.StringSliceP("format", "f", []string{"console"}, "Report formats: console, adoc, json, yaml")
	flags.StringP("output", "o", ".", "Directory for report files")
	flags.String("log-level", "warn", "Diagnostic log level")
	flags.String("log-format", "console", "Diagnostic log format: console or json")
	flags.Bool("compress", false, "Store written reports in a password protected zip")
	flags.String("password", "", "Password for the report archive")
}

// runRoot audits the local host, or the inventory when --hosts is given
func runRoot(cmd *cobra.Command, args []string) error {
	if hostsFile != "" {
		fmt.Println("Hosts file provided, running multi-host audit...")
		return runMultiHost(cmd, hostsFile, 0)
	}
	return runAudit(cmd, args)
}

// loadAuditConfig merges defaults, the config file, CIS_AUDIT_* variables and flags
func loadAuditConfig(flags *pflag.FlagSet, configFile string) (*config.AuditConfig, error) {
	v := config.NewViper()
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return config.LoadAuditConfig(v, configFile)
}

// auditSetup is everything a run needs once configuration is settled
type auditSetup struct {
	cfg    *config.AuditConfig
	policy audit.ManualPolicy
	logger zerolog.Logger
}

func newAuditSetup(flags *pflag.FlagSet) (*auditSetup, error) {
	cfg, err := loadAuditConfig(flags, configFile)
	if err != nil {
		return nil, err
	}
	if err := validateChecks(cfg.Checks); err != nil {
		return nil, err
	}
	policy, err := audit.ParseManualPolicy(cfg.ManualPolicy)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	if noColor {
		color.NoColor = true
	}
	return &auditSetup{cfg: cfg, policy: policy, logger: logger}, nil
}

// validateChecks rejects rule ids that no category registers
func validateChecks(ids []string) error {
	var unknown []string
	for _, id := range ids {
		if !cis.Known(id) {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown rule id(s): %s (see 'cis-audit list')", strings.Join(unknown, ", "))
	}
	return nil
}

// newSystemRunner binds the benchmark to exec and applies the run filters
func (s *auditSetup) newSystemRunner(logger zerolog.Logger, exec utils.CommandExecutor, onDone func(audit.CheckEvent)) (*audit.SystemRunner, []*audit.Category) {
	categories := cis.Categories(probe.NewEnv(exec))
	runner := audit.NewRunner(logger, audit.Options{
		Workers:      s.cfg.Workers,
		CheckTimeout: s.cfg.CheckTimeout,
		ManualPolicy: s.policy,
		Checks:       s.cfg.Checks,
		OnCheckDone:  onDone,
	})
	system := audit.NewSystemRunnerFor(logger, runner, categories...).WithFilter(s.cfg.Include, s.cfg.Skip)
	return system, categories
}

// plannedChecks counts the checks a filtered run will execute
func plannedChecks(system *audit.SystemRunner, categories []*audit.Category, checks []string) int {
	only := make(map[string]bool, len(checks))
	for _, id := range checks {
		only[id] = true
	}

	total := 0
	for _, category := range categories {
		if !system.Enabled(category.Name) {
			continue
		}
		for _, id := range category.CheckIDs() {
			if len(only) == 0 || only[id] {
				total++
			}
		}
	}
	return total
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(!noColor),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetDescription(description),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// reportBaseName builds "<host>-cis-audit-<timestamp>"
func reportBaseName(hostname string, at time.Time) string {
	return fmt.Sprintf("%s-cis-audit-%s", sanitizeFilename(hostname), at.Format("20060102-150405"))
}

// sanitizeFilename removes or replaces characters that are problematic in filenames
func sanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "",
		"?", "",
		"\"", "",
		"<", "",
		">", "",
		"|", "-",
		" ", "_",
	)
	return replacer.Replace(filename)
}
