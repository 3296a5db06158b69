package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mastodon-to-sqlite/internal/archive"
	"mastodon-to-sqlite/internal/credentials"
)

var errAuthFailed = errors.New("credentials were rejected by the server")

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Save Mastodon authentication credentials",
	Long: `Save Mastodon authentication credentials to a JSON file, or to the
system keychain with --keyring.

You will be prompted for your instance's domain and an access token. Create
the token from a new application under Preferences > Development on your
instance.`,
	Args: cobra.NoArgs,
	RunE: withApp(runAuth),
}

var verifyAuthCmd = &cobra.Command{
	Use:   "verify-auth",
	Short: "Verify the authentication to the Mastodon server",
	Args:  cobra.NoArgs,
	RunE:  withApp(runVerifyAuth),
}

func init() {
	rootCmd.AddCommand(authCmd, verifyAuthCmd)
}

func runAuth(ctx context.Context, a *app, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Mastodon domain: ")
	domain, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read domain: %w", err)
	}
	domain = credentials.NormalizeDomain(domain)
	if domain == "" {
		return errors.New("a Mastodon domain is required")
	}

	fmt.Println()
	fmt.Printf("Create a new application here: https://%s/settings/applications/new\n", domain)
	fmt.Println("Then navigate to newly created application and paste in the following:")
	fmt.Println()

	fmt.Print("Your access token: ")
	token, err := readSecret(reader)
	if err != nil {
		return fmt.Errorf("failed to read access token: %w", err)
	}

	store, err := a.credentialStore()
	if err != nil {
		return err
	}
	if err := store.Save(&credentials.Credentials{Domain: domain, AccessToken: token}); err != nil {
		return err
	}

	if fs, ok := store.(*credentials.FileStore); ok {
		fmt.Printf("Credentials saved to %s\n", fs.Path())
	} else {
		fmt.Println("Credentials saved to the system keychain")
	}
	return nil
}

func runVerifyAuth(ctx context.Context, a *app, args []string) error {
	creds, err := a.credentials()
	if err != nil {
		return err
	}

	ok, err := archive.NewSyncer(a.client(creds), nil, a.logger).Verify(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(os.Stderr, "Failed to authenticate with the Mastodon server.")
		return errAuthFailed
	}

	fmt.Println("Successfully authenticated with the Mastodon server.")
	return nil
}

// readSecret reads a line without echo when stdin is a terminal
func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(secret)), nil
	}

	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
