package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/facchinm/avrdude/avr"
	"github.com/facchinm/avrdude/avr910"
	"github.com/facchinm/avrdude/bitbang"
	"github.com/facchinm/avrdude/buspirate"
	"github.com/facchinm/avrdude/gpiopins"
	"github.com/facchinm/avrdude/internal/avrsim"
	"github.com/facchinm/avrdude/isp"
	"github.com/facchinm/avrdude/parport"
	"github.com/facchinm/avrdude/serialport"
)

// connection is everything a command needs to talk to the target.
type connection struct {
	def     programmerDef
	part    *avr.Part
	backend isp.Backend
	ind     isp.Indicator

	// noFuses is set for programmers that cannot read fuses
	noFuses bool
}

// connect resolves the part and programmer named on the command line and
// opens the programmer. Nothing is sent to the target yet.
func connect() (*connection, error) {
	if err := requirePart(); err != nil {
		return nil, err
	}
	part, ok := avr.LookupPart(partName)
	if !ok {
		return nil, fmt.Errorf("part %q not found, see the parts command", partName)
	}

	def, err := lookupProgrammer(cfgFile, programmerID)
	if err != nil {
		return nil, err
	}

	c := &connection{def: def, part: part}
	log := glogLogger{verbose: verbose}

	switch def.Type {
	case typeParport, typeGPIO, typeDryRun:
		err = c.openBitbang(log)
	case typeBusPirate:
		err = c.openBusPirate(log)
	case typeBusPirateBitbang:
		err = c.openBusPirateBitbang(log)
	case typeAVR910:
		err = c.openAVR910(log)
	default:
		err = fmt.Errorf("programmer %s: unknown type %q", def.ID, def.Type)
	}
	if err != nil {
		return nil, err
	}
	if c.ind == nil {
		c.ind = isp.LogIndicator{Logger: log}
	}
	return c, nil
}

func (c *connection) port() string {
	if portName != "" {
		return portName
	}
	return c.def.Port
}

func (c *connection) baud(fallback int) int {
	switch {
	case baudRate != 0:
		return baudRate
	case c.def.Baud != 0:
		return c.def.Baud
	}
	return fallback
}

func (c *connection) delay() (time.Duration, error) {
	if ispDelay != 0 || c.def.ISPDelay == "" {
		return ispDelay, nil
	}
	d, err := time.ParseDuration(c.def.ISPDelay)
	if err != nil {
		return 0, fmt.Errorf("programmer %s: isp_delay: %w", c.def.ID, err)
	}
	return d, nil
}

func (c *connection) openBitbang(log isp.Logger) error {
	pm, err := c.def.pinMap()
	if err != nil {
		return err
	}
	delay, err := c.delay()
	if err != nil {
		return err
	}

	var pins bitbang.Pins
	var opts []bitbang.Option
	switch c.def.Type {
	case typeParport:
		spec := exitSpecs
		if spec == "" {
			spec = c.def.ExitSpecs
		}
		exit, err := parport.ParseExitSpecs(spec)
		if err != nil {
			return err
		}
		port, err := parport.OpenDevice(c.port(), pm,
			parport.WithLogger(log),
			parport.WithISPDelay(delay),
			parport.WithExitSpec(exit),
		)
		if err != nil {
			return err
		}
		pins = port

	case typeGPIO:
		if len(c.def.Lines) == 0 {
			return fmt.Errorf("programmer %s: no gpio lines assigned", c.def.ID)
		}
		lines, err := gpiopins.Open(c.def.Lines, gpiopins.WithLogger(log), gpiopins.WithDelay(delay))
		if err != nil {
			return err
		}
		pins = lines

	case typeDryRun:
		pins = dryRunTarget(c.part, avrsim.Wiring{Reset: pm.Reset, SCK: pm.SCK, MOSI: pm.MOSI, MISO: pm.MISO})
		opts = append(opts, bitbang.WithSleep(func(time.Duration) {}))
	}

	bb, err := bitbang.New(pins, pm, append(opts, bitbang.WithLogger(log))...)
	if err != nil {
		if closer, ok := pins.(io.Closer); ok {
			_ = closer.Close()
		}
		return err
	}
	c.backend = bb
	c.ind = bb.LEDs()
	return nil
}

// dryRunTargets keeps one simulated device per part for the life of the
// process.
var dryRunTargets = map[string]*avrsim.Target{}

func dryRunTarget(part *avr.Part, w avrsim.Wiring) *avrsim.Target {
	t, ok := dryRunTargets[part.ID]
	if !ok {
		t = avrsim.New(part, w)
		dryRunTargets[part.ID] = t
	}
	return t
}

func (c *connection) openSerial(fallback int) (*serialport.Port, error) {
	name := c.port()
	if name == "" {
		return nil, fmt.Errorf("programmer %s needs a serial port, use -P", c.def.ID)
	}
	return serialport.Open(name, c.baud(fallback))
}

func (c *connection) busPirateOptions(log isp.Logger) ([]buspirate.Option, error) {
	params := append(append([]string{}, c.def.ExtParams...), extParams...)
	opts, err := buspirate.ParseExtParams(params)
	if err != nil {
		return nil, err
	}
	return append(opts, buspirate.WithLogger(log)), nil
}

func (c *connection) openBusPirate(log isp.Logger) error {
	opts, err := c.busPirateOptions(log)
	if err != nil {
		return err
	}
	link, err := c.openSerial(115200)
	if err != nil {
		return err
	}
	c.backend = buspirate.New(link, opts...)
	return nil
}

func (c *connection) openBusPirateBitbang(log isp.Logger) error {
	opts, err := c.busPirateOptions(log)
	if err != nil {
		return err
	}
	link, err := c.openSerial(115200)
	if err != nil {
		return err
	}

	pins := buspirate.NewBitbang(link, opts...)
	bb, err := bitbang.New(pins, buspirate.BitbangPinMap, bitbang.WithLogger(log))
	if err != nil {
		_ = pins.Close()
		return err
	}
	c.backend = bb
	return nil
}

func (c *connection) openAVR910(log isp.Logger) error {
	if len(extParams) > 0 || len(c.def.ExtParams) > 0 {
		return fmt.Errorf("programmer %s takes no extended parameters", c.def.ID)
	}
	link, err := c.openSerial(avr910.DefaultBaud)
	if err != nil {
		return err
	}
	c.backend = avr910.New(link, avr910.WithLogger(log))
	c.noFuses = true
	return nil
}

// session wraps the connection in a programming session configured from
// the command line.
func (c *connection) session(progress io.Writer) *isp.Programmer {
	opts := []isp.Option{
		isp.WithLogger(glogLogger{verbose: verbose}),
		isp.WithIndicator(c.ind),
		isp.WithVerify(!noVerify),
		isp.WithSafemode(!noSafemode && !c.noFuses),
		isp.WithFuseRetries(fuseRetries),
		isp.WithForceSignature(force),
	}
	if progress != nil {
		opts = append(opts, isp.WithProgressCallback(progressBar(progress)))
	}
	return isp.New(c.backend, c.part, opts...)
}
