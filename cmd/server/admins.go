package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ButyrinIA/lostfound/internal/identity"
	"github.com/ButyrinIA/lostfound/internal/models"
)

var adminsCmd = &cobra.Command{
	Use:   "admins",
	Short: "Manage the admin directory",
}

var grantCmd = &cobra.Command{
	Use:   "grant <subject-id>",
	Short: "Grant admin rights to a subject",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setAdmin(cmd, args[0], true) },
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <subject-id>",
	Short: "Revoke admin rights from a subject",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setAdmin(cmd, args[0], false) },
}

var tokenCmd = &cobra.Command{
	Use:   "token <subject-id> <email>",
	Short: "Issue a development access token signed with the configured secret",
	Args:  cobra.ExactArgs(2),
	RunE:  runToken,
}

func init() {
	adminsCmd.AddCommand(grantCmd, revokeCmd)
	tokenCmd.Flags().String("name", "", "display name claim")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
}

func setAdmin(cmd *cobra.Command, subjectID string, isAdmin bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Storage.Type != "postgres" {
		return errors.New("admins commands need --storage postgres; the memory store does not outlive the process")
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	backend, err := openBackend(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	if err := backend.SetAdmin(cmd.Context(), subjectID, isAdmin); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s admin=%t\n", subjectID, isAdmin)
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	name, _ := cmd.Flags().GetString("name")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	v := identity.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.AllowedDomain)
	subject := &models.Subject{ID: args[0], Email: args[1], DisplayName: name}
	if !v.DomainAllowed(subject.Email) {
		return fmt.Errorf("%w: %s", identity.ErrDomainBlocked, subject.Email)
	}
	token, err := v.Issue(subject, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
