package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aitoolhub/accountsec/pkg/secrets"
	"github.com/aitoolhub/accountsec/pkg/token"
)

func newKeygenCmd() *cobra.Command {
	var session bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Print a fresh master key",
		Long: `Print a random base64 key for ACCOUNTSEC_MASTER_KEY.

With --session the output is a signing secret for ACCOUNTSEC_SESSION_SECRET
instead. Rotating the master key makes stored TOTP secrets and recovery codes
unreadable, so existing enrollments have to be reset.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				key string
				err error
			)
			if session {
				key, err = token.GenerateSecret()
			} else {
				key, err = secrets.GenerateEncodedKey()
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
			return err
		},
	}
	cmd.Flags().BoolVar(&session, "session", false, "generate a session signing secret")
	return cmd
}
