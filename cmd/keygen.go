package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/meshcall/internal/integrity"
	"github.com/BioHazard786/meshcall/internal/ui"
)

var (
	flagKeygenOut   string
	flagKeygenForce bool
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a key pair for signing handshakes",
	Long: `Generate an RSA key pair. Pass the private key to join with --sign-key and
share the public key with peers, who pass it with --trust.

Examples:
  meshcall keygen
  meshcall keygen --out alice`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		privPath, pubPath := flagKeygenOut+".key", flagKeygenOut+".pub"
		if !flagKeygenForce {
			for _, p := range []string{privPath, pubPath} {
				if _, err := os.Stat(p); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", p)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}
		}

		priv, pub, err := integrity.GenerateKeyPEM()
		if err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		if err := os.WriteFile(privPath, priv, 0o600); err != nil {
			return err
		}
		if err := os.WriteFile(pubPath, pub, 0o644); err != nil {
			return err
		}

		ui.PrintSuccessf("%s Wrote %s and %s", ui.IconKey, privPath, pubPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)

	keygenCmd.Flags().StringVarP(&flagKeygenOut, "out", "o", "meshcall", "Output path prefix")
	keygenCmd.Flags().BoolVarP(&flagKeygenForce, "force", "f", false, "Overwrite existing files")
}
