package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/facchinm/avrdude/avr"
	"github.com/facchinm/avrdude/serialport"
)

// partsCmd represents the parts command
var partsCmd = &cobra.Command{
	Use:   "parts",
	Short: "List the supported parts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tPART\tSIGNATURE\tFLASH\tEEPROM")
		for _, p := range avr.Parts() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n",
				p.ID, p.Desc, hexBytes(p.Signature[:]), memSize(p, avr.MemFlash), memSize(p, avr.MemEEPROM))
		}
		return tw.Flush()
	},
}

func memSize(p *avr.Part, name string) int {
	if m := p.Mem(name); m != nil {
		return m.Size
	}
	return 0
}

// programmersCmd represents the programmers command
var programmersCmd = &cobra.Command{
	Use:   "programmers",
	Short: "List the known programmers",
	Long: `List the built-in programmers and the ones defined in the file given
with --config.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		defs, err := loadProgrammers(cfgFile)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, id := range sortedIDs(defs) {
			labelColor.Fprintf(out, "%-14s", id)
			fmt.Fprintf(out, " %-13s %s\n", defs[id].Type, defs[id].Desc)
		}
		return nil
	},
}

// portsCmd represents the ports command
var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := serialport.List()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(ports) == 0 {
			warnf(out, "no serial ports found")
			return nil
		}
		for _, p := range ports {
			fmt.Fprintln(out, p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(partsCmd)
	rootCmd.AddCommand(programmersCmd)
	rootCmd.AddCommand(portsCmd)
}
