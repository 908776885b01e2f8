package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

var (
	cfgFile        string
	programmerID   string
	partName       string
	portName       string
	baudRate       int
	extParams      []string
	exitSpecs      string
	ispDelay       time.Duration
	verbose        bool
	force          bool
	noVerify       bool
	noSafemode     bool
	fuseRetries    int
	connectTimeout time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "avrdude",
	Short: "AVR in-system programmer",
	Long: `Program AVR microcontrollers over their serial programming interface,
through a parallel port, host GPIO lines, a Bus Pirate or an AVR910
serial programmer.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// glog reads its flags from the standard flag set
		if !flag.Parsed() {
			if err := flag.CommandLine.Parse(nil); err != nil {
				return err
			}
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	defer glog.Flush()
	if err := rootCmd.Execute(); err != nil {
		errorf(os.Stderr, "%v", err)
		glog.Flush()
		os.Exit(1)
	}
}

func init() {
	_ = flag.Set("logtostderr", "true")
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "C", "", "programmer definitions file (YAML)")
	pf.StringVarP(&programmerID, "programmer", "c", "", "programmer id, see the programmers command")
	pf.StringVarP(&partName, "part", "p", "", "target part, see the parts command")
	pf.StringVarP(&portName, "port", "P", "", "connection port (serial device, parallel port or GPIO chip)")
	pf.IntVarP(&baudRate, "baud", "b", 0, "serial baud rate, overrides the programmer definition")
	pf.StringArrayVarP(&extParams, "extended", "x", nil, "extended programmer parameter, may be repeated")
	pf.StringVarP(&exitSpecs, "exitspec", "E", "", "pin state on exit: reset,noreset,vcc,novcc,d_high,d_low")
	pf.DurationVarP(&ispDelay, "isp-delay", "i", 0, "delay after every pin change")
	pf.BoolVar(&verbose, "verbose", false, "log progress messages")
	pf.BoolVarP(&force, "force", "F", false, "continue when the device signature does not match")
	pf.BoolVarP(&noVerify, "noverify", "V", false, "do not verify memories after writing")
	pf.BoolVarP(&noSafemode, "nosafemode", "u", false, "do not save and check fuses")
	pf.IntVar(&fuseRetries, "fuse-retries", 10, "attempts for each fuse write")
	pf.DurationVar(&connectTimeout, "timeout", 0, "abort the session after this long, 0 for no limit")
}

// sessionContext returns the context a programming session runs under.
func sessionContext() (context.Context, context.CancelFunc) {
	if connectTimeout > 0 {
		return context.WithTimeout(context.Background(), connectTimeout)
	}
	return context.WithCancel(context.Background())
}

func requirePart() error {
	if partName == "" {
		return fmt.Errorf("target part not specified, use -p")
	}
	return nil
}
