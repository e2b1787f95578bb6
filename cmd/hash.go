package cmd

import (
	"fmt"
	"strings"

	"github.com/andresmejia3/aist/internal/hashing"
	"github.com/andresmejia3/aist/internal/unlock"
	"github.com/spf13/cobra"
)

var (
	hashMethod string
	hashVerify string
)

var hashCmd = &cobra.Command{
	Use:   "hash [value]",
	Short: "Hash a password for unlock.password_hash, or verify one",
	Long: `Prints the digest of value with the chosen method. Without value the
password is read from the terminal without echo.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if !cmd.Flags().Changed("method") {
			hashMethod = cfg.Unlock.Method
		}
		if !hashing.Supported(hashMethod) {
			return fmt.Errorf("%w %q (choose from %s)", hashing.ErrUnsupportedMethod, hashMethod, strings.Join(hashing.Methods(), ", "))
		}

		var value string
		if len(args) == 1 {
			value = args[0]
		} else {
			v, err := unlock.NewTermPrompter().Prompt("Password: ")
			if err != nil {
				return err
			}
			value = v
		}

		if hashVerify != "" {
			ok, err := hashing.Verify(value, hashVerify, hashMethod)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("❌ No match")
				return fmt.Errorf("hash does not match")
			}
			fmt.Println("✅ Match")
			return nil
		}

		digest, err := hashing.Hash(value, hashMethod)
		if err != nil {
			return err
		}
		fmt.Println(digest)
		return nil
	},
}

func init() {
	hashCmd.Flags().StringVarP(&hashMethod, "method", "m", hashing.Default, "Hash method: "+strings.Join(hashing.Methods(), ", "))
	hashCmd.Flags().StringVar(&hashVerify, "verify", "", "Check value against this digest instead of printing one")
	rootCmd.AddCommand(hashCmd)
}
