package cmd

import (
	"bytes"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/facchinm/avrdude/avr"
)

// imageCmd represents the image command
var imageCmd = &cobra.Command{
	Use:   "image <file>",
	Short: "Check an image file against a part",
	Long: `Parse an image file as it would be written to a memory of the selected
part and summarize it. Nothing is connected.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requirePart(); err != nil {
			return err
		}
		part, ok := avr.LookupPart(partName)
		if !ok {
			return fmt.Errorf("part %q not found, see the parts command", partName)
		}
		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("memory")
		rows, _ := cmd.Flags().GetInt("rows")

		data, err := loadImage(part, name, args[0], format)
		if err != nil {
			return err
		}
		m := part.Mem(name)

		out := cmd.OutOrStdout()
		okf(out, "%s parsed", args[0])
		field(out, "memory", "%s of %s, %d bytes", name, part.Desc, m.Size)
		field(out, "image", "%d bytes (%.1f%%)", len(data), 100*float64(len(data))/float64(m.Size))
		field(out, "used", "%d bytes", countUsed(data))
		if m.Paged && m.PageSize > 0 {
			field(out, "pages", "%d of %d, %d bytes each", touchedPages(data, m.PageSize), m.NumPages, m.PageSize)
		}
		dump(out, data, rows)
		return nil
	},
}

// countUsed counts the bytes that are not erased.
func countUsed(data []byte) int {
	return len(data) - bytes.Count(data, []byte{0xFF})
}

// touchedPages counts the pages holding at least one programmed byte.
func touchedPages(data []byte, pageSize int) int {
	n := 0
	for off := 0; off < len(data); off += pageSize {
		end := min(off+pageSize, len(data))
		if countUsed(data[off:end]) > 0 {
			n++
		}
	}
	return n
}

// dump prints the first rows lines of 16 bytes that are not all erased.
func dump(w io.Writer, data []byte, rows int) {
	shown := 0
	for off := 0; off < len(data) && shown < rows; off += 16 {
		line := data[off:min(off+16, len(data))]
		if countUsed(line) == 0 {
			continue
		}
		labelColor.Fprintf(w, "  %04X:", off)
		fmt.Fprintf(w, " % X\n", line)
		shown++
	}
}

func init() {
	rootCmd.AddCommand(imageCmd)
	imageCmd.Flags().StringP("format", "f", "auto", "image format: auto, ihex or raw")
	imageCmd.Flags().StringP("memory", "m", avr.MemFlash, "memory the image is meant for")
	imageCmd.Flags().Int("rows", 4, "number of non-empty 16 byte rows to print")
}
