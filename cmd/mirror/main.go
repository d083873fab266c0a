package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mirror-go/internal/app"
	"mirror-go/internal/config"
	"mirror-go/internal/mirror"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file named by the environment defaults.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a MirrorApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "backup", "restore").
func newApp(operation string) (*app.MirrorApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewMirrorApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readPassphrase prompts on the terminal without echo. MIRROR_PASSPHRASE
// is used instead when set, for unattended runs.
func readPassphrase(prompt string) (string, error) {
	if p := os.Getenv("MIRROR_PASSPHRASE"); p != "" {
		return p, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal to read a passphrase from: set MIRROR_PASSPHRASE")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

// reportTreeErrors prints one line per failed entry of a copy or delete.
func reportTreeErrors(err error) {
	for _, te := range mirror.TreeErrors(err) {
		fmt.Fprintf(os.Stderr, "  %s %s: %v\n", te.Op, te.Path, te.Err)
	}
}

var rootCmd = &cobra.Command{
	Use:          "mirror",
	Short:        "Application data backup mirror",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		appID, _ := cmd.Flags().GetString("app-id")
		dataDir, _ := cmd.Flags().GetString("data-dir")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(appID, defaults["base_dir"])
		cfg.DataDir = dataDir
		if err := cfg.Validate(); err != nil {
			return err
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("App ID:     %s\n", cfg.AppID)
		fmt.Printf("Data Dir:   %s\n", cfg.DataDir)
		fmt.Printf("Backup Dir: %s\n", cfg.BackupDir)
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

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("App ID:      %s\n", cfg.AppID)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Data Dir:    %s\n", cfg.DataDir)
		fmt.Printf("Backup Dir:  %s\n", cfg.BackupDir)
		fmt.Printf("Delay:       %s\n", cfg.Schedule.Delay)
		fmt.Printf("Session:     %s\n", cfg.Session.Type)
		fmt.Printf("Reload:      %s\n", cfg.Preferences.Reload)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:       %s (%s)\n", v.Name, v.Type)
		}
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Mirror the data directory into the backup directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("backup")
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Backup()
		if err != nil {
			reportTreeErrors(err)
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("Backed up %d file(s), %d byte(s), %d skipped\n", stats.Files, stats.Bytes, stats.Skipped)
		return nil
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the data directory with the backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("restore")
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Restore()
		if err != nil {
			reportTreeErrors(err)
			return fmt.Errorf("restore failed: %w", err)
		}

		fmt.Printf("Restored %d file(s), %d byte(s)\n", stats.Files, stats.Bytes)
		return nil
	},
}

// clear command
var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the backup directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("clear")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ClearBackup(); err != nil {
			reportTreeErrors(err)
			return err
		}

		fmt.Println("Backup cleared")
		return nil
	},
}

// reload command
var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Mark every preference store for reload",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("reload")
		if err != nil {
			return err
		}
		defer a.Close()

		names, err := a.ReloadPreferences()
		for _, name := range names {
			fmt.Printf("reloaded %s\n", name)
		}
		return err
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Compare the data directory with the backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("status")
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.Status()
		if err != nil {
			return err
		}

		fmt.Printf("Data:   %d entries, %d bytes\n", st.Data.Entries, st.Data.Bytes)
		if !st.HasBackup {
			fmt.Println("Backup: none")
			return nil
		}
		fmt.Printf("Backup: %d entries, %d bytes\n", st.Backup.Entries, st.Backup.Bytes)
		if st.InSync() {
			fmt.Println("In sync")
		} else {
			fmt.Println("Out of sync")
		}
		return nil
	},
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Back up after the data directory settles",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("watch")
		if err != nil {
			return err
		}
		defer a.Close()

		cfg := a.Config()
		delay := cfg.Schedule.Delay.Duration
		if cmd.Flags().Changed("delay") {
			delay, _ = cmd.Flags().GetDuration("delay")
		}
		if delay == 0 {
			delay = mirror.DefaultScheduleDelay
		}
		interval := cfg.Schedule.PollInterval.Duration
		if cmd.Flags().Changed("interval") {
			interval, _ = cmd.Flags().GetDuration("interval")
		}
		if interval <= 0 {
			return fmt.Errorf("poll interval must be positive")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Watching (delay %s, poll every %s). Ctrl-C to stop.\n", delay, interval)
		return a.Watch(ctx, delay, interval)
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("history")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt.Valid {
				duration = op.Duration().Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-16s  %s  %-8s  %6d files  %10d bytes  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				op.Files,
				op.Bytes,
				duration,
			)
			if op.Error != "" {
				fmt.Printf("    %s\n", op.Error)
			}
		}
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
	Short: "Generate the archive key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("keys-init")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		if os.Getenv("MIRROR_PASSPHRASE") == "" {
			confirm, err := readPassphrase("Repeat passphrase: ")
			if err != nil {
				return err
			}
			if confirm != passphrase {
				return errors.New("passphrases do not match")
			}
		}

		if err := a.InitKeys(passphrase); err != nil {
			return err
		}
		fmt.Println("Keys created")
		return nil
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Store the backup off the device",
}

var archivePushCmd = &cobra.Command{
	Use:   "push",
	Short: "Encrypt the backup and upload it to a vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		vaultName, _ := cmd.Flags().GetString("vault")

		a, err := newApp("archive-push")
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := a.PushArchive(cmd.Context(), vaultName)
		if err != nil {
			return fmt.Errorf("push failed: %w", err)
		}

		fmt.Printf("Pushed %d file(s) as %s (%d bytes)\n", m.Files, m.Checksum[:12], m.Size)
		return nil
	},
}

var archivePullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Replace the backup with the latest archive from a vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		vaultName, _ := cmd.Flags().GetString("vault")

		a, err := newApp("archive-pull")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}

		result, err := a.PullArchive(cmd.Context(), vaultName, passphrase)
		if err != nil {
			reportTreeErrors(err)
			return fmt.Errorf("pull failed: %w", err)
		}

		fmt.Printf("Pulled %d file(s) from %s (version %d)\n",
			result.Files, result.Manifest.Checksum[:12], result.Manifest.Version)
		return nil
	},
}

var archiveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest archive in a vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		vaultName, _ := cmd.Flags().GetString("vault")
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("archive-status")
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.ArchiveStatus(cmd.Context(), vaultName, limit)
		if err != nil {
			return err
		}

		if st.Latest == nil {
			fmt.Printf("Vault %s holds no archive.\n", st.Vault)
		} else {
			origin := "another device"
			if st.Known != nil {
				origin = "this device"
			}
			fmt.Printf("Vault %s: %s  %s  version %d  %d files  pushed from %s\n",
				st.Vault,
				st.Latest.Checksum[:12],
				st.Latest.CreatedAt.Format("2006-01-02 15:04:05"),
				st.Latest.Version,
				st.Latest.Files,
				origin,
			)
		}

		for _, ar := range st.Recorded {
			fmt.Printf("  #%d  %s  %s  %s  %d bytes\n",
				ar.OperationID, ar.Checksum[:12], ar.Vault, ar.CreatedAt.Format("2006-01-02 15:04:05"), ar.Size)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("app-id", "", "Application id (e.g. com.example.app)")
	configInitCmd.Flags().String("data-dir", "", "Application data directory to mirror")
	configInitCmd.MarkFlagRequired("app-id")
	configInitCmd.MarkFlagRequired("data-dir")

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// archive subcommands
	archiveCmd.AddCommand(archivePushCmd)
	archiveCmd.AddCommand(archivePullCmd)
	archiveCmd.AddCommand(archiveStatusCmd)
	archiveCmd.PersistentFlags().String("vault", "", "Vault name (default: first configured vault)")
	archiveStatusCmd.Flags().IntP("limit", "n", 10, "Maximum number of local archive records to show")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Duration("delay", mirror.DefaultScheduleDelay, "Wait this long after the last change")
	watchCmd.Flags().Duration("interval", 2*time.Second, "How often to look for changes")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(archiveCmd)
}
