package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dmbot/dmbot/internal/secrets"
)

var secretKey string

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Seal credentials for the config file",
	Long: `Seal credentials so they can be stored in the config file as "enc:" values.

The key is read from --key or ` + secrets.KeyEnv + `.`,
}

var secretKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new sealing key",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := secrets.GenerateKey()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), secrets.EncodeKey(key))
		return err
	},
}

var secretSealCmd = &cobra.Command{
	Use:   "seal [value]",
	Short: "Seal a value (reads stdin when no argument is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := secrets.KeyFromEnv(secretKey)
		if err != nil {
			return fmt.Errorf("load sealing key: %w", err)
		}
		value, err := secretInput(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		sealed, err := secrets.Seal(key, value)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), sealed)
		return err
	},
}

var secretOpenCmd = &cobra.Command{
	Use:   "open [value]",
	Short: "Decrypt a sealed value to verify it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := secrets.KeyFromEnv(secretKey)
		if err != nil {
			return fmt.Errorf("load sealing key: %w", err)
		}
		value, err := secretInput(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		plain, err := secrets.Open(key, value)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), plain)
		return err
	},
}

// secretInput takes the value from args or the first line of in.
func secretInput(in io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		if v := strings.TrimSpace(args[0]); v != "" {
			return v, nil
		}
		return "", errors.New("value is empty")
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no value given on stdin")
	}
	return line, nil
}

func init() {
	secretCmd.PersistentFlags().StringVar(&secretKey, "key", "", "base64 sealing key (default $"+secrets.KeyEnv+")")
	secretCmd.AddCommand(secretKeygenCmd, secretSealCmd, secretOpenCmd)
	rootCmd.AddCommand(secretCmd)
}
