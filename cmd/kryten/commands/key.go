package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kryten-bot/kryten/pkg/kryten/bot"
)

// newKeyCmd creates the `kryten key` command group for managing the
// model API key in the OS keyring.
func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the model API key in the OS keyring",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set",
			Short: "Store the API key in the keyring",
			RunE: func(_ *cobra.Command, _ []string) error {
				fmt.Print("API key: ")
				reader := bufio.NewReader(os.Stdin)
				key, err := reader.ReadString('\n')
				if err != nil {
					return fmt.Errorf("reading key: %w", err)
				}
				key = strings.TrimSpace(key)
				if key == "" {
					return fmt.Errorf("no key entered")
				}
				if err := bot.StoreKeyringAPIKey(key); err != nil {
					return err
				}
				fmt.Println("API key stored in keyring.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Check whether a key is stored in the keyring",
			RunE: func(_ *cobra.Command, _ []string) error {
				if _, err := bot.GetKeyringAPIKey(); err != nil {
					return fmt.Errorf("no key found: %w", err)
				}
				fmt.Println("API key present in keyring.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Remove the API key from the keyring",
			RunE: func(_ *cobra.Command, _ []string) error {
				if err := bot.DeleteKeyringAPIKey(); err != nil {
					return err
				}
				fmt.Println("API key removed from keyring.")
				return nil
			},
		},
	)

	return cmd
}
