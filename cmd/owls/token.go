package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-owls/infrastructure/auth"
	"github.com/ahrav/go-owls/internal/application"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage clinician bearer tokens",
	}
	cmd.AddCommand(newTokenIssueCmd())
	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var (
		issuer string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue <subject>",
		Short: "Sign a bearer token with the secret in " + application.EnvJWTSecret,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv(application.EnvJWTSecret)
			if secret == "" {
				return errors.New(application.EnvJWTSecret + " is not set")
			}
			a, err := auth.NewJWTAuthenticator(secret, issuer)
			if err != nil {
				return err
			}
			token, err := a.IssueToken(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&issuer, "issuer", "", "iss claim; must match auth.issuer when the server sets one")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
