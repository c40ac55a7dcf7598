// cmd/bookswapctl/commands.go
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"bookswap/internal/consistency"
	"bookswap/internal/users"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newCheckCmd(open opener) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report records that disagree across users, books and requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			findings, err := consistency.New(db, cfg.Store, nil).Check(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if findings == nil {
					findings = []consistency.Finding{}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(findings); err != nil {
					return err
				}
			} else {
				for _, f := range findings {
					fmt.Fprintln(out, f)
				}
			}

			if len(findings) > 0 {
				return fmt.Errorf("%d inconsistencies found", len(findings))
			}
			if !asJSON {
				fmt.Fprintln(out, "No inconsistencies found")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print findings as JSON")
	return cmd
}

func newRepairCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Mark books traded where a request for them was accepted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			repaired, err := consistency.New(db, cfg.Store, nil).Repair(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, f := range repaired {
				fmt.Fprintf(out, "repaired %s\n", f)
			}
			fmt.Fprintf(out, "%d records repaired\n", len(repaired))
			return nil
		},
	}
}

func newUserAddCmd(open opener) *cobra.Command {
	var name, email string

	cmd := &cobra.Command{
		Use:   "useradd",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}

			cfg, db, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			user, err := users.NewService(db, cfg.Store.UsersFile, nil).Create(cmd.Context(), users.NewUser{
				Name:     name,
				Email:    email,
				Password: password,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created user %s <%s> id=%s\n", user.Name, user.Email, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// readPassword prompts twice without echo on a terminal. Piped input is read
// as a single line.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		first, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		fmt.Fprint(prompt, "Repeat password: ")
		second, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		if string(first) != string(second) {
			return "", errors.New("passwords do not match")
		}
		return strings.TrimSpace(string(first)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	password := strings.TrimSpace(line)
	if password == "" {
		return "", errors.New("empty password")
	}
	return password, nil
}
