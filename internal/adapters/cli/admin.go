package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"invoice-reconciler/internal/adapters/web"
	"invoice-reconciler/internal/db"
	"invoice-reconciler/internal/mail"
	"invoice-reconciler/migrations"

	"github.com/spf13/cobra"
)

func migrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.cfg.Database.URL == "" {
				return errors.New("database.url is required (set DATABASE_URL)")
			}
			pool, err := db.NewPool(cmd.Context(), e.cfg.Database.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := migrations.Apply(cmd.Context(), pool)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(applied) == 0 {
				fmt.Fprintln(out, "Database is up to date.")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(out, "  applied %s\n", name)
			}
			return nil
		},
	}
}

func mailAuthCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mail-auth",
		Short: "Authorize mailbox access and store the OAuth token",
		RunE: func(cmd *cobra.Command, args []string) error {
			code, _ := cmd.Flags().GetString("code")

			oauthCfg, err := mail.OAuthConfig(e.cfg.Mail.CredentialsFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if code == "" {
				fmt.Fprintf(out, "Open this URL in a browser and paste the authorization code:\n\n  %s\n\nCode: ", mail.AuthCodeURL(oauthCfg))
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read authorization code: %w", err)
				}
				code = strings.TrimSpace(line)
			}
			if code == "" {
				return errors.New("authorization code is required")
			}
			if err := mail.ExchangeAndSave(cmd.Context(), oauthCfg, code, e.cfg.Mail.TokenFile); err != nil {
				return err
			}
			fmt.Fprintf(out, "Token saved to %s\n", e.cfg.Mail.TokenFile)
			return nil
		},
	}
	cmd.Flags().String("code", "", "authorization code (prompted when empty)")
	return cmd
}

func tokenCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token signed with server.jwt_secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			company, _ := cmd.Flags().GetString("company")
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			if e.cfg.Server.JWTSecret == "" {
				return errors.New("server.jwt_secret is not configured")
			}
			tok, err := web.SignToken(e.cfg.Server.JWTSecret, subject, company, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "token subject")
	cmd.Flags().String("company", "", "restrict the token to one company code")
	cmd.Flags().String("role", "clerk", "role claim")
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
