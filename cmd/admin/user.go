package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/gophaudio/internal/common"
	"github.com/dmitrijs2005/gophaudio/internal/server/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// test seams for the terminal
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
	stdinFd      = func() int { return int(os.Stdin.Fd()) }
)

func newUserAddCmd(opts *rootOptions) *cobra.Command {
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "useradd <email>",
		Short: "Register a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				pw  []byte
				err error
			)
			if passwordStdin || !isTerminal(stdinFd()) {
				pw, err = readLine(cmd.InOrStdin())
			} else {
				pw, err = promptPassword(cmd.ErrOrStderr())
			}
			if err != nil {
				return err
			}
			defer common.WipeByteArray(pw)

			return withBackend(cmd, opts, func(b backend, _ *config.Config) error {
				u, err := b.Register(cmd.Context(), args[0], string(pw))
				if err != nil {
					return err
				}
				return writePlain(cmd.OutOrStdout(), "created user %s (%s)\n", u.Email, u.ID)
			})
		},
	}

	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read password from stdin")
	return cmd
}

func newUserDelCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "userdel <email>",
		Short: "Delete a user together with their artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, opts, func(b backend, _ *config.Config) error {
				if err := b.DeleteAccountByEmail(cmd.Context(), args[0]); err != nil {
					if errors.Is(err, common.ErrNotFound) {
						return fmt.Errorf("no user %s", args[0])
					}
					return err
				}
				return writePlain(cmd.OutOrStdout(), "deleted user %s\n", args[0])
			})
		},
	}
}

// promptPassword asks twice without echo.
func promptPassword(w io.Writer) ([]byte, error) {
	fmt.Fprint(w, "Enter password: ")
	first, err := readPassword(stdinFd())
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}

	fmt.Fprint(w, "Repeat password: ")
	second, err := readPassword(stdinFd())
	fmt.Fprintln(w)
	if err != nil {
		common.WipeByteArray(first)
		return nil, err
	}
	defer common.WipeByteArray(second)

	if string(first) != string(second) {
		common.WipeByteArray(first)
		return nil, errors.New("passwords do not match")
	}
	return first, nil
}

func readLine(r io.Reader) ([]byte, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, errors.New("empty password")
	}
	return []byte(line), nil
}
