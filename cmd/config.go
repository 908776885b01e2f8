package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/facchinm/avrdude/bitbang"
)

// Programmer types.
const (
	typeParport          = "par"
	typeGPIO             = "gpio"
	typeBusPirate        = "buspirate"
	typeBusPirateBitbang = "buspirate_bb"
	typeAVR910           = "avr910"
	typeDryRun           = "dryrun"
)

// programmerDef describes one programmer as it appears in a definitions
// file:
//
//	programmers:
//	  - id: rpi
//	    desc: Raspberry Pi header
//	    type: gpio
//	    reset: 1
//	    sck: 2
//	    mosi: 3
//	    miso: 4
//	    lines: {1: GPIO25, 2: GPIO11, 3: GPIO10, 4: GPIO9}
type programmerDef struct {
	ID   string `yaml:"id"`
	Desc string `yaml:"desc"`
	Type string `yaml:"type"`

	// Port is the default connection port
	Port string `yaml:"port,omitempty"`
	Baud int    `yaml:"baud,omitempty"`

	Reset  string `yaml:"reset,omitempty"`
	SCK    string `yaml:"sck,omitempty"`
	MOSI   string `yaml:"mosi,omitempty"`
	MISO   string `yaml:"miso,omitempty"`
	ErrLED string `yaml:"errled,omitempty"`
	RdyLED string `yaml:"rdyled,omitempty"`
	PgmLED string `yaml:"pgmled,omitempty"`
	VfyLED string `yaml:"vfyled,omitempty"`
	VCC    string `yaml:"vcc,omitempty"`
	Buff   string `yaml:"buff,omitempty"`

	// Lines names the host GPIO line of each pin number
	Lines map[int]string `yaml:"lines,omitempty"`

	ExtParams []string `yaml:"extended_params,omitempty"`
	ExitSpecs string   `yaml:"exitspecs,omitempty"`
	ISPDelay  string   `yaml:"isp_delay,omitempty"`
}

type definitions struct {
	Programmers []programmerDef `yaml:"programmers"`
}

// builtinProgrammers is always loaded before any definitions file.
const builtinProgrammers = `
programmers:
  - id: bsd
    desc: Brian Dean's parallel programmer
    type: par
    port: /dev/parport0
    reset: 7
    sck: 8
    mosi: 9
    miso: 10
    vcc: 2,3,4,5
  - id: stk200
    desc: STK200
    type: par
    port: /dev/parport0
    reset: 9
    sck: 6
    mosi: 7
    miso: 10
    buff: 4,5
  - id: dapa
    desc: Direct AVR Parallel Access cable
    type: par
    port: /dev/parport0
    reset: "~16"
    sck: 1
    mosi: 2
    miso: 11
    vcc: 3
  - id: rpi
    desc: Raspberry Pi header, SPI0 pins with GPIO25 as reset
    type: gpio
    reset: 1
    sck: 2
    mosi: 3
    miso: 4
    lines: {1: GPIO25, 2: GPIO11, 3: GPIO10, 4: GPIO9}
  - id: buspirate
    desc: The Bus Pirate
    type: buspirate
    baud: 115200
  - id: buspirate_bb
    desc: The Bus Pirate in bitbang mode
    type: buspirate_bb
    baud: 115200
  - id: avr910
    desc: Atmel Low Cost Serial Programmer
    type: avr910
    baud: 19200
  - id: dryrun
    desc: Simulated target, nothing is connected
    type: dryrun
    reset: 1
    sck: 2
    mosi: 3
    miso: 4
`

func parseDefinitions(data []byte) ([]programmerDef, error) {
	var defs definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, err
	}
	for i, def := range defs.Programmers {
		if def.ID == "" {
			return nil, fmt.Errorf("programmer %d has no id", i+1)
		}
		switch def.Type {
		case typeParport, typeGPIO, typeBusPirate, typeBusPirateBitbang, typeAVR910, typeDryRun:
		default:
			return nil, fmt.Errorf("programmer %s: unknown type %q", def.ID, def.Type)
		}
	}
	return defs.Programmers, nil
}

// loadProgrammers returns the built-in definitions overlaid with the ones
// in path, if set. A definition in the file replaces a built-in one of the
// same id.
func loadProgrammers(path string) (map[string]programmerDef, error) {
	builtin, err := parseDefinitions([]byte(builtinProgrammers))
	if err != nil {
		return nil, fmt.Errorf("built-in programmers: %w", err)
	}

	out := map[string]programmerDef{}
	for _, def := range builtin {
		out[def.ID] = def
	}
	if path == "" {
		return out, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	defs, err := parseDefinitions(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, def := range defs {
		out[def.ID] = def
	}
	return out, nil
}

func lookupProgrammer(path, id string) (programmerDef, error) {
	if id == "" {
		return programmerDef{}, fmt.Errorf("programmer not specified, use -c")
	}
	defs, err := loadProgrammers(path)
	if err != nil {
		return programmerDef{}, err
	}
	def, ok := defs[strings.ToLower(id)]
	if !ok {
		def, ok = defs[id]
	}
	if !ok {
		return programmerDef{}, fmt.Errorf("programmer %q not found", id)
	}
	return def, nil
}

func sortedIDs(defs map[string]programmerDef) []string {
	ids := make([]string, 0, len(defs))
	for id := range defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// pinMap builds the bitbang pin assignment of a definition.
func (d programmerDef) pinMap() (bitbang.PinMap, error) {
	var pm bitbang.PinMap
	single := []struct {
		name string
		text string
		dst  *int
	}{
		{"reset", d.Reset, &pm.Reset},
		{"sck", d.SCK, &pm.SCK},
		{"mosi", d.MOSI, &pm.MOSI},
		{"miso", d.MISO, &pm.MISO},
		{"errled", d.ErrLED, &pm.ErrLED},
		{"rdyled", d.RdyLED, &pm.RdyLED},
		{"pgmled", d.PgmLED, &pm.PgmLED},
		{"vfyled", d.VfyLED, &pm.VfyLED},
	}
	for _, s := range single {
		if s.text == "" {
			continue
		}
		pin, err := bitbang.ParsePin(s.text)
		if err != nil {
			return pm, fmt.Errorf("programmer %s: %s: %w", d.ID, s.name, err)
		}
		*s.dst = pin
	}

	var err error
	if pm.VCC, err = bitbang.ParsePinList(d.VCC); err != nil {
		return pm, fmt.Errorf("programmer %s: vcc: %w", d.ID, err)
	}
	if pm.Buff, err = bitbang.ParsePinList(d.Buff); err != nil {
		return pm, fmt.Errorf("programmer %s: buff: %w", d.ID, err)
	}
	return pm, pm.Validate()
}
