package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/facchinm/avrdude/avr"
	"github.com/facchinm/avrdude/hexfile"
	"github.com/facchinm/avrdude/isp"
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write <memory> <file>",
	Short: "Write an image file to a memory",
	Long: `Write an Intel HEX or raw binary image to a memory of the target, e.g.

  avrdude -c bsd -p m328p write flash blink.hex

Flash is erased first unless --no-erase is given. The memory is read back
and compared afterwards unless -V is given.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, path := args[0], args[1]
		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}
		noErase, _ := cmd.Flags().GetBool("no-erase")

		return runSession(cmd, func(ctx context.Context, prog *isp.Programmer) error {
			data, err := loadImage(prog.Part(), name, path, format)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if name == avr.MemFlash && !noErase {
				if err := prog.ChipErase(ctx); err != nil {
					return err
				}
				okf(out, "chip erased")
			}

			n, err := prog.WriteMemory(ctx, name, data)
			if err != nil {
				return err
			}
			okf(out, "%d bytes of %s written", n, name)
			if !noVerify {
				okf(out, "%d bytes of %s verified", n, name)
			}
			return nil
		})
	},
}

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <memory> <file>",
	Short: "Read a memory into an image file",
	Long: `Read a whole memory of the target and save it as Intel HEX or raw
binary. Trailing erased bytes of flash are left out.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, path := args[0], args[1]
		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}

		return runSession(cmd, func(ctx context.Context, prog *isp.Programmer) error {
			m := prog.Part().Mem(name)
			if m == nil {
				return &isp.MemoryNotFoundError{Part: prog.Part().Desc, Memory: name}
			}

			data, err := prog.ReadMemory(ctx, name, m.Size)
			if err != nil {
				return err
			}
			copy(m.Buf, data)

			n := len(data)
			if m.IsFlash() {
				n = hexfile.Used(data)
			}
			if err := hexfile.WriteFile(path, format, m, n); err != nil {
				return err
			}
			okf(cmd.OutOrStdout(), "%d bytes of %s saved to %s", n, name, path)
			return nil
		})
	},
}

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify <memory> <file>",
	Short: "Compare a memory with an image file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, path := args[0], args[1]
		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}

		return runSession(cmd, func(ctx context.Context, prog *isp.Programmer) error {
			data, err := loadImage(prog.Part(), name, path, format)
			if err != nil {
				return err
			}
			if err := prog.Verify(ctx, name, data); err != nil {
				return err
			}
			okf(cmd.OutOrStdout(), "%d bytes of %s verified", len(data), name)
			return nil
		})
	},
}

// loadImage reads an image file for the named memory. The result is a
// copy; the memory's back-buffer is used by the session.
func loadImage(part *avr.Part, name, path string, format hexfile.Format) ([]byte, error) {
	m := part.Mem(name)
	if m == nil {
		return nil, &isp.MemoryNotFoundError{Part: part.Desc, Memory: name}
	}

	scratch := *m
	scratch.Buf = make([]byte, m.Size)
	n, err := hexfile.ReadFile(path, format, &scratch)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%s: image is empty", path)
	}
	return scratch.Buf[:n], nil
}

func formatFlag(cmd *cobra.Command) (hexfile.Format, error) {
	s, _ := cmd.Flags().GetString("format")
	return hexfile.ParseFormat(s)
}

func init() {
	for _, c := range []*cobra.Command{writeCmd, readCmd, verifyCmd} {
		rootCmd.AddCommand(c)
		c.Flags().StringP("format", "f", "auto", "image format: auto, ihex or raw")
	}
	writeCmd.Flags().BoolP("no-erase", "D", false, "do not erase the chip before writing flash")
}
