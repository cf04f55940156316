// Copyright (c) 2025 Tripmaster Team
// Tripmaster - self-hosted travel management
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/voyagist/tripmaster/internal/backup"
	"github.com/voyagist/tripmaster/internal/db"
	"github.com/voyagist/tripmaster/internal/i18n"
)

var backupOutputDir string
var backupUser string
var restoreAdminID string
var assumeYes bool

// newBackupCmd assembles the `backup` command group.
func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, validate, restore and inspect backup archives",
	}

	// Subcommands are package-level and newBackupCmd may run more than once
	// in tests; pflag panics on duplicate definitions, so check first.
	if backupCreateCmd.Flags().Lookup("output") == nil {
		backupCreateCmd.Flags().StringVarP(&backupOutputDir, "output", "o", ".", "Directory to write the archive into")
		backupCreateCmd.Flags().StringVarP(&backupUser, "user", "u", "cli", "Name recorded as the backup's creator")
		backupCreateCmd.Flags().StringVarP(&password, "password", "p", "", "Backup password (prompted when omitted)")
	}
	if backupValidateCmd.Flags().Lookup("password") == nil {
		backupValidateCmd.Flags().StringVarP(&password, "password", "p", "", "Backup password (prompted when needed)")
	}
	if backupRestoreCmd.Flags().Lookup("password") == nil {
		backupRestoreCmd.Flags().StringVarP(&password, "password", "p", "", "Backup password (prompted when needed)")
		backupRestoreCmd.Flags().StringVar(&restoreAdminID, "admin-id", "", "ID of the admin account to preserve across the restore")
		backupRestoreCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
		_ = backupRestoreCmd.MarkFlagRequired("admin-id")
	}

	cmd.AddCommand(backupCreateCmd, backupValidateCmd, backupRestoreCmd, backupInfoCmd)
	return cmd
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a password-protected backup archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		pw := password
		if pw == "" {
			var err error
			pw, err = promptPasswordConfirmed()
			if err != nil {
				return err
			}
		}

		eng := backup.New(appConfig)
		data, name, err := eng.Create(cmd.Context(), backupUser, pw)
		if errors.Is(err, backup.ErrPasswordTooShort) {
			return errors.New(i18n.T("backup.error_password_too_short"))
		}
		if err != nil {
			return err
		}

		path := filepath.Join(backupOutputDir, name)
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return err
		}
		fmt.Println(i18n.T("backup.created", path, len(data)))
		return nil
	},
}

var backupValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a backup archive without touching live state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		pw := password
		if pw == "" && backup.IsEncrypted(data) {
			if pw, err = promptPassword(i18n.T("cli.prompt_password")); err != nil {
				return err
			}
		}

		eng := backup.New(appConfig)
		result, err := eng.Validate(cmd.Context(), data, pw)
		if err != nil {
			return err
		}

		fmt.Println(result.Message)
		for _, w := range result.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
		if !result.Valid {
			return errors.New(result.Message)
		}

		m := result.Metadata
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "format version:\t%s\n", m.BackupFormatVersion)
		fmt.Fprintf(w, "created at:\t%s\n", m.CreatedAt)
		fmt.Fprintf(w, "created by:\t%s\n", m.CreatedBy)
		fmt.Fprintf(w, "database size:\t%d bytes\n", m.DBSizeBytes)
		fmt.Fprintf(w, "avatars:\t%d\n", m.AvatarCount)
		fmt.Fprintf(w, "integration configs:\t%d\n", m.IntegrationConfigCount)
		fmt.Fprintf(w, "checksum:\t%s\n", m.Checksum)
		return w.Flush()
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <file>",
	Short: "Restore a backup archive, replacing database and avatars",
	Long: `Restore replaces the live database and avatar directory with the
archive's contents. An unencrypted safety snapshot of the current state is
written to the pre-restore directory first, and the account named by
--admin-id is carried over so the instance stays reachable.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		pw := password
		if pw == "" && backup.IsEncrypted(data) {
			if pw, err = promptPassword(i18n.T("cli.prompt_password")); err != nil {
				return err
			}
		}

		if !assumeYes && !confirm(fmt.Sprintf("Restore %s over the live instance? [y/N]: ", args[0])) {
			return errors.New("aborted")
		}

		eng := backup.New(appConfig)
		result, err := eng.Restore(cmd.Context(), data, pw, restoreAdminID)
		if err != nil {
			return err
		}
		if !result.Success {
			return errors.New(result.Message)
		}

		fmt.Println(result.Message)
		fmt.Println(result.Details.MigrationsMessage)
		if result.Details.ConfigsImported > 0 {
			fmt.Printf("integration configs imported: %d\n", result.Details.ConfigsImported)
		}
		return nil
	},
}

var backupInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show what a backup taken right now would capture",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := backup.New(appConfig).Info()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "database:\t%s\n", appConfig.DatabasePath)
		fmt.Fprintf(w, "database exists:\t%v\n", info.DatabaseExists)
		fmt.Fprintf(w, "database size:\t%d bytes\n", info.DatabaseSizeBytes)
		fmt.Fprintf(w, "avatars:\t%d\n", info.AvatarCount)
		return w.Flush()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := db.MigrateToHead(appConfig.DatabasePath); err != nil {
			return errors.New(i18n.T("migrations.failed", err))
		}
		fmt.Println(i18n.T("migrations.success"))
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the backup/restore audit trail",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := db.GetAllAuditLogEntries(cmd.Context(), appConfig.DatabasePath)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No audit entries.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIMESTAMP\tUSER\tACTION\tDETAILS")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Timestamp, e.Username, e.Action, e.Details)
		}
		return w.Flush()
	},
}

// promptPassword reads a password without echo when stdin is a terminal,
// falling back to a plain line read for piped input.
func promptPassword(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func promptPasswordConfirmed() (string, error) {
	pw, err := promptPassword(i18n.T("cli.prompt_password"))
	if err != nil {
		return "", err
	}
	pw2, err := promptPassword(i18n.T("cli.prompt_password_confirm"))
	if err != nil {
		return "", err
	}
	if pw != pw2 {
		return "", errors.New(i18n.T("cli.error_password_mismatch"))
	}
	return pw, nil
}

func confirm(prompt string) bool {
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
