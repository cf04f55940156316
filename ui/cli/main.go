// Copyright (c) 2025 Tripmaster Team
// Tripmaster - self-hosted travel management
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the command-line interface (CLI) for the Tripmaster
// backup tool using the Cobra library. It defines the root command, the
// backup command group, flags, and the main entry point for execution.

package cli

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	log "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/voyagist/tripmaster/buildvars"
	"github.com/voyagist/tripmaster/internal/config"
	"github.com/voyagist/tripmaster/internal/db"
	"github.com/voyagist/tripmaster/internal/i18n"
	"github.com/voyagist/tripmaster/internal/logging"
)

var cfgFile string
var verbose bool
var password string // shared --password flag for the backup commands

var appConfig config.Config

func setupDefaultServices(cmd *cobra.Command, args []string) error {
	optionalConfigPath, err := getConfigPathFromCli(cmd)
	if err != nil {
		return err
	}

	appConfig, err = config.Load(cmd, optionalConfigPath)
	if err != nil {
		return errors.New(i18n.T("cli.error_init_config", err))
	}

	// First run: no config file anywhere. Persist one so the generated
	// secret key survives restarts.
	if appConfig.Source == "" {
		if appConfig.SecretKey == "" {
			appConfig.SecretKey = newSecretKey()
		}
		if writeErr := config.WriteConfigFile(&appConfig, false); writeErr != nil {
			log.Warnf("could not write default config file: %v", writeErr)
		}
	} else if appConfig.SecretKey == "" {
		appConfig.SecretKey = newSecretKey()
		if writeErr := config.UpdateSecretKey(appConfig.Source, appConfig.SecretKey); writeErr != nil {
			log.Warnf("could not persist generated secret key: %v", writeErr)
		}
	}

	i18n.Init(appConfig.Language)

	if verbose {
		logging.SetDebug(true)
		db.SetDebug(true)
	}
	return nil
}

// newSecretKey generates a fresh deployment secret for first-run setups.
func newSecretKey() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

func getConfigPathFromCli(cmd *cobra.Command) (*string, error) {
	// Only proceed if the user has explicitly set the --config flag.
	if cmd.Flags().Changed("config") {
		path, err := cmd.Flags().GetString("config")
		if err != nil {
			return nil, fmt.Errorf("could not read --config flag: %w", err)
		}
		if path == "" {
			return nil, nil
		}
		// Make sure the user-provided file exists to avoid unwanted behavior.
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file specified via --config flag not found or is not accessible: %w", err)
		}
		return &path, nil
	}
	return nil, nil
}

// Execute runs the CLI entrypoint. The root main package calls this
// function and handles process exit.
func Execute() error {
	return NewRootCmd().Execute()
}

func applyDefaultFlags(cmd *cobra.Command) {
	// NewRootCmd may be called multiple times in tests; pflag panics on
	// duplicate flag definitions, so check first.
	if cmd.Flags().Lookup("database.dsn") == nil {
		cmd.Flags().String("database.dsn", "sqlite:///./data/tripmaster.db", "Database connection string (DSN)")
	}
	if cmd.Flags().Lookup("paths.avatars") == nil {
		cmd.Flags().String("paths.avatars", "./static/avatars", "Directory holding uploaded avatars")
	}
	if cmd.Flags().Lookup("paths.pre_restore") == nil {
		cmd.Flags().String("paths.pre_restore", "./backups/pre_restore", "Directory receiving pre-restore safety snapshots")
	}
}

// NewRootCmd creates and configures a new root cobra command. It is used
// for the main application command as well as fresh instances in tests.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tripmaster",
		Short: "Tripmaster backup tool: archive, validate and restore instance state.",
		Long: `Tripmaster's backup tool packages the SQLite database, the avatar
directory and the decrypted integration secrets into a single
password-protected archive, and restores such archives on this or
another instance while preserving the invoking admin account.`,
		SilenceUsage:      true,
		PersistentPreRunE: setupDefaultServices,
	}

	cmd.Version = buildvars.VersionOrDefault("dev")

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output (debug logs)")
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
	cmd.PersistentFlags().String("language", "en", `Message language ("en", "de")`)
	applyDefaultFlags(cmd)

	applyDefaultFlags(backupCreateCmd)
	applyDefaultFlags(backupValidateCmd)
	applyDefaultFlags(backupRestoreCmd)
	applyDefaultFlags(backupInfoCmd)
	applyDefaultFlags(migrateCmd)
	applyDefaultFlags(auditCmd)

	cmd.AddCommand(
		newBackupCmd(),
		migrateCmd,
		auditCmd,
	)

	return cmd
}
