package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"fortuneteller/pkg/config"
)

func stdinIsTerminal() bool {
	return term.IsTerminal(syscall.Stdin)
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	pw, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	defer clear(pw)
	return string(pw), nil
}

// promptNewPassword asks twice and gives up after three mismatches.
func promptNewPassword() (string, error) {
	if pw := os.Getenv(envPassword); pw != "" {
		return pw, nil
	}
	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fmt.Print("Enter a password for stored credentials: ")
		pw1, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Print("Confirm password: ")
		pw2, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			clear(pw1)
			return "", fmt.Errorf("failed to read password: %w", err)
		}

		match := bytes.Equal(pw1, pw2) && len(pw1) > 0
		password := string(pw1)
		clear(pw1)
		clear(pw2)
		if match {
			fmt.Printf("💡 Set %s to skip this prompt next time.\n", envPassword)
			return password, nil
		}
		if attempt < maxAttempts {
			fmt.Println("❌ Passwords do not match. Please try again.")
		}
	}
	return "", fmt.Errorf("passwords do not match after %d attempts", maxAttempts)
}

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage encrypted API keys",
	Long: `Store provider API keys in an encrypted file next to the config file.
Keys in the file take precedence over environment variables.`,
}

var secretsSetCmd = &cobra.Command{
	Use:   "set <NAME> [value]",
	Short: "Store a secret (read from stdin when value is omitted)",
	Example: `  fortune secrets set OPENAI_API_KEY
  echo "$KEY" | fortune secrets set ANTHROPIC_API_KEY`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		value := ""
		if len(args) == 2 {
			value = args[1]
		} else if value, err = readSecretValue(args[0]); err != nil {
			return err
		}

		return withSecrets(cfg, func() error {
			return config.SetSecret(args[0], value)
		})
	},
}

var secretsListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored secret names",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if !config.SecretsFileExists(secretsDir(cfg)) {
			fmt.Println("No secrets stored.")
			return nil
		}
		if err := unlockSecrets(cfg); err != nil {
			return err
		}
		for _, name := range config.SecretNames() {
			fmt.Println("- " + name)
		}
		return nil
	},
}

var secretsRmCmd = &cobra.Command{
	Use:   "rm <NAME>...",
	Short: "Remove stored secrets",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if !config.SecretsFileExists(secretsDir(cfg)) {
			return fmt.Errorf("no secrets file at %s", config.SecretsPath(secretsDir(cfg)))
		}
		return withSecrets(cfg, func() error {
			for _, name := range args {
				if err := config.DeleteSecret(name); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

func readSecretValue(name string) (string, error) {
	if stdinIsTerminal() {
		return readPassword(fmt.Sprintf("Value for %s: ", name))
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s from stdin: %w", name, err)
	}
	return strings.TrimSpace(line), nil
}

// withSecrets unlocks (or creates) the secrets file, applies fn and writes it back.
func withSecrets(cfg *config.Manager, fn func() error) error {
	dir := secretsDir(cfg)
	var (
		password string
		err      error
	)
	if config.SecretsFileExists(dir) {
		password = os.Getenv(envPassword)
		if password == "" {
			if password, err = readPassword("🔑 Password for stored credentials: "); err != nil {
				return err
			}
		}
		if _, err := config.LoadSecrets(dir, password); err != nil {
			return fmt.Errorf("unlock secrets: %w", err)
		}
	} else if password, err = promptNewPassword(); err != nil {
		return err
	}

	if err := fn(); err != nil {
		return err
	}
	fmt.Println("🔐 Encrypting and saving credentials...")
	if err := config.SaveSecretsToFile(dir, password); err != nil {
		return err
	}
	fmt.Printf("✅ Saved to %s\n", config.SecretsPath(dir))
	return nil
}

func init() {
	rootCmd.AddCommand(secretsCmd)
	secretsCmd.AddCommand(secretsSetCmd)
	secretsCmd.AddCommand(secretsListCmd)
	secretsCmd.AddCommand(secretsRmCmd)
}
