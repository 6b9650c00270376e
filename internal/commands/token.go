package commands

import (
	"fmt"
	"time"

	"cajaclaro/internal/auth"

	"github.com/spf13/cobra"
)

func newTokenCommand(a *app) *cobra.Command {
	var (
		subject string
		email   string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.AuthJWTSecret == "" {
				return fmt.Errorf("AUTH_JWT_SECRET is not set")
			}
			tok, err := auth.NewVerifier(a.cfg.AuthJWTSecret, a.cfg.AuthJWTIssuer).Issue(subject, email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "owner subject (sub claim)")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
