package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/gophaudio/internal/server/config"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "admin",
		Short:         "Operator tasks for gophaudio",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "server config file (json, toml or yaml)")

	cmd.AddCommand(
		newSweepCmd(opts),
		newPurgeCmd(opts),
		newUserAddCmd(opts),
		newUserDelCmd(opts),
	)

	return cmd
}

// withBackend loads config, connects and runs fn, closing connections after.
func withBackend(cmd *cobra.Command, opts *rootOptions, fn func(b backend, cfg *config.Config) error) (err error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	b, err := newBackend(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := b.Close(); err == nil {
			err = cerr
		}
	}()

	return fn(b, cfg)
}

func newSweepCmd(opts *rootOptions) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete artifacts older than the retention age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, opts, func(b backend, cfg *config.Config) error {
				age := maxAge
				if age <= 0 {
					age = cfg.RetentionMaxAge
				}

				n, err := b.Sweep(cmd.Context(), time.Now(), age)
				if err != nil {
					return err
				}
				return writePlain(cmd.OutOrStdout(), "removed %d artifact(s) older than %s\n", n, age)
			})
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "override the configured retention age")
	return cmd
}

func newPurgeCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every artifact and every user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("refusing to purge without --force")
			}
			return withBackend(cmd, opts, func(b backend, _ *config.Config) error {
				res, err := b.Purge(cmd.Context())
				if res != nil {
					_ = writePlain(cmd.OutOrStdout(), "deleted %d artifact(s) and %d user(s)\n", res.Artifacts, res.Users)
				}
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "confirm the purge")
	return cmd
}

func writePlain(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
