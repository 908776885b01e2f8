package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/facchinm/avrdude/isp"
)

// signatureCmd represents the signature command
var signatureCmd = &cobra.Command{
	Use:   "signature",
	Short: "Read the device signature",
	Long: `Enter programming mode, read the device signature and compare it with
the signature of the selected part.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd, func(ctx context.Context, prog *isp.Programmer) error {
			return nil
		})
	},
}

// eraseCmd represents the erase command
var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Perform a chip erase",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd, func(ctx context.Context, prog *isp.Programmer) error {
			if err := prog.ChipErase(ctx); err != nil {
				return err
			}
			okf(cmd.OutOrStdout(), "chip erased")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(signatureCmd)
	rootCmd.AddCommand(eraseCmd)
}
