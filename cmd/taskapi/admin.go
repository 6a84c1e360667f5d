package main

import (
	"fmt"
	"strings"
	"time"

	"taskcal/internal/api"
	"taskcal/internal/database"
	"taskcal/internal/models"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := loadConfigAndLogger(cmd, "migrate")
			if err != nil {
				return err
			}
			defer closeQuietly(closer)

			// NewDB applies the schema.
			db, err := database.NewDB(cfg.Database.Path, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			logger.Info().Str("db_path", cfg.Database.Path).Msg("schema is up to date")
			return nil
		},
	}
}

func newLinkCalendarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link-calendar",
		Short: "Store a Google Calendar credential for a user",
		Long: `Store a Google Calendar OAuth credential for a user.

The newest credential wins. Tokens are not refreshed by the service; link a
fresh access token when the old one expires.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, _ := cmd.Flags().GetString("user")
			accessToken, _ := cmd.Flags().GetString("access-token")
			refreshToken, _ := cmd.Flags().GetString("refresh-token")
			if strings.TrimSpace(userID) == "" || strings.TrimSpace(accessToken) == "" {
				return fmt.Errorf("--user and --access-token are required")
			}

			cfg, logger, closer, err := loadConfigAndLogger(cmd, "link-calendar")
			if err != nil {
				return err
			}
			defer closeQuietly(closer)

			db, err := database.NewDB(cfg.Database.Path, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			cred := &models.ExternalCredential{
				UserID:       userID,
				AccessToken:  accessToken,
				RefreshToken: refreshToken,
				Provider:     models.ProviderGoogle,
			}
			if err := db.SaveCredential(cmd.Context(), cred); err != nil {
				return err
			}

			logger.Info().Str("user_id", userID).Str("credential_id", cred.ID).Msg("calendar linked")
			return nil
		},
	}
	cmd.Flags().String("user", "", "user id (JWT subject)")
	cmd.Flags().String("access-token", "", "Google OAuth access token")
	cmd.Flags().String("refresh-token", "", "Google OAuth refresh token")
	return cmd
}

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Write a database snapshot and prune old ones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := loadConfigAndLogger(cmd, "backup")
			if err != nil {
				return err
			}
			defer closeQuietly(closer)

			db, err := database.NewDB(cfg.Database.Path, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			svc := database.NewBackupService(db, cfg.Backup, logger)
			path, err := svc.PerformBackup(cmd.Context())
			if err != nil {
				return err
			}
			svc.CleanupOldBackups()

			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, _ := cmd.Flags().GetString("user")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if strings.TrimSpace(userID) == "" {
				return fmt.Errorf("--user is required")
			}

			cfg, _, closer, err := loadConfigAndLogger(cmd, "token")
			if err != nil {
				return err
			}
			defer closeQuietly(closer)

			tok, err := api.NewJWTAuth(cfg.API.Auth).Issue(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("user", "", "user id to put in the subject claim")
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	return cmd
}
