package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/yolodolo42/aaflow/internal/identity"
	"golang.org/x/term"
)

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println() // newline after password input
	if err != nil {
		return "", err
	}
	return string(password), nil
}

func readLine(prompt string) string {
	fmt.Print(prompt)
	var input string
	_, _ = fmt.Scanln(&input)
	return strings.TrimSpace(input)
}

// promptCredentials asks for the passphrase of email when a login needs it.
func promptCredentials(email string) identity.CredentialsFunc {
	return func(ctx context.Context) (identity.Credentials, error) {
		if email == "" {
			email = readLine("Email: ")
		}
		pass, err := readPassword(fmt.Sprintf("Passphrase for %s: ", email))
		if err != nil {
			return identity.Credentials{}, fmt.Errorf("failed to read passphrase: %w", err)
		}
		return identity.Credentials{Email: email, Passphrase: pass}, nil
	}
}

// promptPassphrase asks for a keystore password when an unlock needs it.
func promptPassphrase(prompt string) identity.PassphraseFunc {
	return func(ctx context.Context) (string, error) {
		pass, err := readPassword(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return pass, nil
	}
}
