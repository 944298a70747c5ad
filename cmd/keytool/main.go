package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"chat_gateway/internal/config"
	"chat_gateway/internal/vault"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "keytool: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "keytool",
		Short: "Chat Gateway credential vault tool",
		Long: "Encrypt, inspect and mask provider API keys.\n\n" +
			"The secret is read from VAULT_SECRET (or .env / CONFIG_FILE).",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newEncryptCmd())
	root.AddCommand(newDecryptCmd())
	root.AddCommand(newMaskCmd())
	root.AddCommand(newGenkeyCmd())
	return root
}

func newEncryptCmd() *cobra.Command {
	var compat bool

	cmd := &cobra.Command{
		Use:   "encrypt [key]",
		Short: "Encrypt a provider API key (reads stdin when key is omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadVault()
			if err != nil {
				return err
			}
			key, err := argOrStdin(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			var material string
			if compat {
				material, err = v.EncryptCompat(key)
			} else {
				material, err = v.Encrypt(key)
			}
			if err != nil {
				return fmt.Errorf("failed to encrypt: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), material)
			return nil
		},
	}

	cmd.Flags().BoolVar(&compat, "compat", false, "produce the OpenSSL \"Salted__\" format the browser UI reads")
	return cmd
}

func newDecryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt [material]",
		Short: "Decrypt key material (\"解密失败\" when it cannot be opened)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadVault()
			if err != nil {
				return err
			}
			material, err := argOrStdin(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			key, ok := v.Reveal(material)
			if !ok {
				key = vault.DecryptFailedText
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func newMaskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mask [material]",
		Short: "Print the masked form shown in settings screens",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			material, err := argOrStdin(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), vault.Mask(material))
			return nil
		},
	}
}

func newGenkeyCmd() *cobra.Command {
	var size int

	cmd := &cobra.Command{
		Use:   "genkey",
		Short: "Generate a random VAULT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := vault.GenerateSecret(size)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), secret)
			return nil
		},
	}

	cmd.Flags().IntVar(&size, "size", 32, "secret size in bytes")
	return cmd
}

func loadVault() (*vault.Vault, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return vault.New(cfg.Vault.Secret)
}

// argOrStdin returns the single positional argument, or the first line of stdin.
func argOrStdin(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("no input given")
	}
	return line, nil
}
