package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/fundkeeper/internal/server/auth"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Terminal seams, replaced in tests.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

func newTokenCommand(opts *options) *cobra.Command {
	var (
		subject string
		secret  string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin bearer token",
		Long: `Mint an HS256 admin token for the HTTP API.
The signing secret is taken from --secret, otherwise prompted for when stdin
is a terminal, otherwise read from the configured secret_key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			if secret == "" {
				secret = cfg.SecretKey
				if fd := int(os.Stdin.Fd()); isTerminal(fd) {
					fmt.Fprint(cmd.ErrOrStderr(), "Signing secret: ")
					pw, err := readPassword(fd)
					fmt.Fprintln(cmd.ErrOrStderr())
					if err != nil {
						return fmt.Errorf("read secret: %w", err)
					}
					secret = strings.TrimSpace(string(pw))
					clear(pw)
				}
			}
			if secret == "" {
				return errors.New("signing secret must not be empty")
			}
			if ttl <= 0 {
				ttl = cfg.AccessTokenValidityDuration
			}

			token, err := auth.GenerateToken(subject, []byte(secret), ttl)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "admin name recorded in the token")
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC signing secret")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from config)")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}
