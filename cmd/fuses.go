package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/facchinm/avrdude/isp"
	"github.com/facchinm/avrdude/safemode"
)

// fusesCmd represents the fuses command
var fusesCmd = &cobra.Command{
	Use:   "fuses [fuse=value ...]",
	Short: "Read or write the fuses",
	Long: `Print the fuse bytes of the target. Given assignments such as
lfuse=0xE2 the fuses are written first, each verified by reading it back.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		writes, err := parseFuseAssignments(args)
		if err != nil {
			return err
		}

		return runSession(cmd, func(ctx context.Context, prog *isp.Programmer) error {
			out := cmd.OutOrStdout()
			for _, w := range writes {
				if prog.Part().Mem(w.name) == nil {
					return &isp.MemoryNotFoundError{Part: prog.Part().Desc, Memory: w.name}
				}
				if err := prog.WriteFuse(ctx, w.name, w.value); err != nil {
					return err
				}
				okf(out, "%s written: 0x%02X", w.name, w.value)
			}

			for _, region := range safemode.Regions {
				if prog.Part().Mem(region) == nil {
					continue
				}
				data, err := prog.ReadMemory(ctx, region, 1)
				if err != nil {
					return err
				}
				field(out, region, "0x%02X", data[0])
			}
			return nil
		})
	},
}

type fuseWrite struct {
	name  string
	value byte
}

func parseFuseAssignments(args []string) ([]fuseWrite, error) {
	var writes []fuseWrite
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid fuse assignment %q, want name=value", arg)
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if !isFuseRegion(name) {
			return nil, fmt.Errorf("%q is not a fuse, want one of %s", name, strings.Join(safemode.Regions, ", "))
		}
		v, err := strconv.ParseUint(strings.TrimSpace(value), 0, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", name, err)
		}
		writes = append(writes, fuseWrite{name: name, value: byte(v)})
	}
	return writes, nil
}

func isFuseRegion(name string) bool {
	for _, r := range safemode.Regions {
		if r == name {
			return true
		}
	}
	return false
}

func init() {
	rootCmd.AddCommand(fusesCmd)
}
