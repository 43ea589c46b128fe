package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage revoked session tokens",
	}

	cmd.AddCommand(newTokenPruneCmd())

	return cmd
}

func newTokenPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete blacklist entries for tokens that have already expired",
		Long: `Delete blacklist entries whose token has expired. Expired tokens fail
signature validation on their own, so their entries are no longer needed.
The server does this periodically (auth.prune_interval); this command runs
a single pass.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenPrune(cmd.OutOrStdout())
		},
	}
}

func runTokenPrune(out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg.Logging, false)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	authSvc, err := newAuthService(cfg, st, nil, logger, true)
	if err != nil {
		return err
	}

	n, err := authSvc.PruneBlacklist(context.Background())
	if err != nil {
		return fmt.Errorf("prune blacklist: %w", err)
	}

	remaining, err := st.CountBlacklisted(context.Background())
	if err != nil {
		return fmt.Errorf("count blacklist: %w", err)
	}
	fmt.Fprintf(out, "Pruned %d expired token(s); %d still revoked.\n", n, remaining)
	return nil
}
