package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"snapkeep/internal/app"
	"snapkeep/internal/config"
	"snapkeep/internal/snap"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var verbose bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file named by the defaults.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Scan", "Restore").
func newApp(operation string) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewApp(cfg, operation, verbose)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// unlock asks for the passphrase when archives are encrypted.
func unlock(a *app.App) error {
	if !a.Encrypted() {
		return nil
	}
	passphrase, err := readPassphrase("Passphrase: ")
	if err != nil {
		return err
	}
	return a.Unlock(passphrase)
}

// readPassphrase prompts on stderr and reads a line from stdin without
// echoing it when stdin is a terminal.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an index", snap.ErrInvalidSelection, s)
	}
	return i, nil
}

// backupAge renders a restore point date as "3 hours ago".
func backupAge(date string) string {
	t, err := time.ParseInLocation(snap.DisplayLayout, date, time.Local)
	if err != nil {
		return date
	}
	return humanize.Time(t)
}

var rootCmd = &cobra.Command{
	Use:          "snapkeep",
	Short:        "Snapshot, compare and restore a source tree",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration and the history database",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		repo, _ := cmd.Flags().GetString("repository")
		source, _ := cmd.Flags().GetString("source")
		if repo == "" {
			repo = defaults.RepositoryName
		}
		if source == "" {
			source = defaults.SourceDir
		}

		cfg := config.NewConfig(repo, source, defaults.BaseDir)
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		if err := app.MigrateDatabase(cfg.Database); err != nil {
			return err
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Repository: %s\n", cfg.RepositoryName)
		fmt.Printf("Source Dir: %s\n", cfg.SourceDir)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Repository:  %s\n", cfg.RepositoryName)
		fmt.Printf("Source Dir:  %s\n", cfg.SourceDir)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Extensions:  %s\n", strings.Join(cfg.Scan.Extensions, " "))
		fmt.Printf("Exclude:     %s\n", strings.Join(cfg.Scan.Exclude, " "))
		fmt.Printf("Vault:       %s\n", cfg.Vault.Type)
		fmt.Printf("Encryption:  %s\n", cfg.Encryption.Type)
		fmt.Printf("Database:    %s\n", cfg.Database.Type)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage archive encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("KeysInit")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return errors.New("passphrases do not match")
		}

		if err := a.SetupKeys(passphrase); err != nil {
			return fmt.Errorf("setting up keys: %w", err)
		}
		fmt.Println("Encryption keys created.")
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the operation history database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := app.MigrateDatabase(cfg.Database); err != nil {
			return err
		}
		fmt.Println("Database is up to date.")
		return nil
	},
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Snapshot the source directory",
	Long: `Snapshot the source directory.

With encryption enabled and a terminal attached, scan asks for the passphrase
so that line diffs against the previous snapshot can be computed. Without a
terminal it runs locked and diffs against the previous snapshot's file index.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Scan")
		if err != nil {
			return err
		}
		defer a.Close()

		if term.IsTerminal(int(os.Stdin.Fd())) {
			if err := unlock(a); err != nil {
				return err
			}
		}

		a.OnProgress(func(processed, total int) {
			fmt.Fprintf(os.Stderr, "\rScanning: %d/%d files", processed, total)
		})

		result, err := a.Scan()
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		fmt.Printf("Archive %s written to %s\n", result.ArchiveID, a.Location())
		fmt.Printf("%s file(s) captured\n", humanize.Comma(int64(result.FileCount)))
		if result.Previous == nil {
			fmt.Println("Initial backup created.")
			return nil
		}
		s := result.Diff.Summary
		fmt.Printf("Changes since %s: %s new, %s modified, %s deleted\n",
			*result.Previous,
			color.GreenString("%d", s.NewFiles),
			color.YellowString("%d", s.ModifiedFiles),
			color.RedString("%d", s.DeletedFiles))
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List restore points, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("List")
		if err != nil {
			return err
		}
		defer a.Close()

		points := a.ListRestorePoints()
		if len(points) == 0 {
			fmt.Printf("No restore points in %s.\n", a.Location())
			return nil
		}
		for i, p := range points {
			fmt.Printf("[%d] %s  (%s)\n", i, p.DisplayName(), backupAge(p.BackupDate))
		}
		return nil
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore INDEX",
	Short: "Restore a restore point into the source or --target directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		target, _ := cmd.Flags().GetString("target")

		a, err := newApp("Restore")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := unlock(a); err != nil {
			return err
		}

		result, err := a.Restore(index, target)
		if err != nil {
			var rerr *snap.RestoreError
			if errors.As(err, &rerr) && rerr.SafetyBackupPath != "" {
				fmt.Fprintf(os.Stderr, "Pre-restore backup kept at %s\n", rerr.SafetyBackupPath)
			}
			return fmt.Errorf("restore failed: %w", err)
		}

		fmt.Printf("Restored %s into %s\n", result.RestorePoint.DisplayName(), result.TargetPath)
		fmt.Printf("%s file(s) written, %s dir(s) created\n",
			humanize.Comma(int64(result.FilesWritten)), humanize.Comma(int64(result.DirsCreated)))
		if result.SafetyBackupPath != "" {
			fmt.Printf("Previous contents backed up to %s\n", result.SafetyBackupPath)
		}
		return nil
	},
}

// compare command
var compareCmd = &cobra.Command{
	Use:   "compare FROM_INDEX TO_INDEX",
	Short: "Show what changed between two restore points",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		to, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		showDiffs, _ := cmd.Flags().GetBool("diffs")

		a, err := newApp("Compare")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := unlock(a); err != nil {
			return err
		}

		report, err := a.Compare(from, to)
		if err != nil {
			return fmt.Errorf("compare failed: %w", err)
		}
		printReport(report, showDiffs)
		return nil
	},
}

func printReport(report *snap.DiffReport, showDiffs bool) {
	added := color.New(color.FgGreen)
	modified := color.New(color.FgYellow)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)

	if report.IsEmpty() {
		fmt.Println("No changes.")
		return
	}
	for _, f := range report.NewFiles {
		added.Printf("  + %s\n", f)
	}
	for _, f := range report.ModifiedFiles {
		modified.Printf("  * %s\n", f)
	}
	for _, f := range report.DeletedFiles {
		removed.Printf("  - %s\n", f)
	}
	fmt.Printf("\n%d new, %d modified, %d deleted\n",
		report.Summary.NewFiles, report.Summary.ModifiedFiles, report.Summary.DeletedFiles)

	if !showDiffs {
		return
	}
	for _, f := range report.ModifiedFiles {
		fmt.Println()
		header.Println(f)
		for _, l := range snap.ParseLineDiff(report.FileDiffs[f]) {
			if l.Added {
				added.Println("+ " + l.Text)
			} else {
				removed.Println("- " + l.Text)
			}
		}
	}
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("GetHistory")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.GetHistory(limit)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-8s  %-12s  %s  %-8s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.Repository,
				op.StartedAt.Local().Format(snap.DisplayLayout),
				op.Status,
				duration,
				op.ArchiveID,
			)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().String("repository", "", "Repository name (default: source directory name)")
	configInitCmd.Flags().String("source", "", "Source directory to snapshot (default: current directory)")
	configCmd.AddCommand(configListCmd)

	keysCmd.AddCommand(keysInitCmd)
	dbCmd.AddCommand(dbMigrateCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().String("target", "", "Directory to restore into (default: source directory)")
	rootCmd.AddCommand(compareCmd)
	compareCmd.Flags().Bool("diffs", false, "Show line diffs of modified files")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
