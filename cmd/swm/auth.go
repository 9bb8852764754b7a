// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/term"

	"github.com/canonical/swm/internal/config"
	"github.com/canonical/swm/internal/tracker"
)

// authCommand groups the credential-enrollment subcommands under "swm auth".
func authCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the Launchpad OAuth credentials swm reads and writes with",
	}
	cmd.AddCommand(authLoginCommand(configPath))
	return cmd
}

// authLoginCommand walks an operator through one-time enrollment: Launchpad's
// OAuth authorization page issues an access token out of band, and this
// command reads the token and its secret from stdin (the secret without
// echo when stdin is a terminal), then seals them into the configured
// credential store so the unattended crank path never
// has a human at the terminal again.
func authLoginCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Enroll a Launchpad OAuth access token for unattended use",
		Long: `login stores the long-lived Launchpad OAuth access token swm needs to
read and edit tracking bugs.

Authorize https://launchpad.net/+authorize-token against the consumer key
configured in tracker.consumer_key first; this command then asks for the
resulting access token and secret on stdin (the secret with terminal echo
disabled when stdin is a terminal) and persists them through the same credential store (OS keyring, falling
back to a sealed file) the daemon and one-shot CLI read from at every
crank pass.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			credDir := cfg.Tracker.CredentialDir
			if credDir == "" {
				dir, err := config.ConfigDir()
				if err != nil {
					return fmt.Errorf("resolve credential directory: %w", err)
				}
				credDir = dir
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Launchpad consumer key: %s\n", cfg.Tracker.ConsumerKey)
			token, err := readLine(cmd, "Access token: ")
			if err != nil {
				return fmt.Errorf("read access token: %w", err)
			}
			secret, err := readSecret(cmd, "Access token secret: ")
			if err != nil {
				return fmt.Errorf("read access token secret: %w", err)
			}

			tok := &oauth2.Token{
				AccessToken: token,
				TokenType:   "oauth1",
			}
			tok = tok.WithExtra(map[string]any{"token_secret": secret})

			store := tracker.NewCredentialStore(credDir)
			if err := store.Save(tok); err != nil {
				return fmt.Errorf("save credentials: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Credentials saved to %s\n", credDir)
			return nil
		},
	}
}

func readLine(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readSecret reads one line from the controlling terminal with echo
// disabled, falling back to a plain (echoing) read when stdin is not a
// terminal -- e.g. piped input in a test or scripted enrollment.
func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
