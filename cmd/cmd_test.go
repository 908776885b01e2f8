package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facchinm/avrdude/avr"
	"github.com/facchinm/avrdude/bitbang"
	"github.com/facchinm/avrdude/internal/avrsim"
	"github.com/facchinm/avrdude/isp"
)

// run executes the command line with fresh global flags and simulated
// devices.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dryRunTargets = map[string]*avrsim.Target{}
	return runAgain(t, args...)
}

// runAgain executes the command line with fresh global flags, keeping the
// simulated devices of earlier runs.
func runAgain(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true

	cfgFile, programmerID, partName, portName = "", "", "", ""
	baudRate, extParams, exitSpecs, ispDelay = 0, nil, "", 0
	verbose, force, noVerify, noSafemode = false, false, false, false
	fuseRetries, connectTimeout = 10, 0
	for _, c := range rootCmd.Commands() {
		for _, name := range []string{"format", "no-erase", "memory", "rows"} {
			if f := c.Flags().Lookup(name); f != nil {
				require.NoError(t, f.Value.Set(f.DefValue))
				f.Changed = false
			}
		}
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParts(t *testing.T) {
	out, err := run(t, "parts")
	require.NoError(t, err)

	for _, p := range avr.Parts() {
		assert.Contains(t, out, p.ID)
	}
	assert.Contains(t, out, "0x1e950f")
}

func TestProgrammersIncludesConfigFile(t *testing.T) {
	cfg := writeTemp(t, "progs.yaml", `
programmers:
  - id: mycable
    desc: Home made cable
    type: par
    reset: 5
    sck: 6
    mosi: 7
    miso: 10
`)
	out, err := run(t, "programmers", "-C", cfg)
	require.NoError(t, err)

	assert.Contains(t, out, "mycable")
	assert.Contains(t, out, "Home made cable")
	assert.Contains(t, out, "buspirate_bb")
	assert.Contains(t, out, "dryrun")
}

func TestParseDefinitionsRejectsUnknownType(t *testing.T) {
	_, err := parseDefinitions([]byte("programmers:\n  - id: x\n    type: stk500\n"))
	assert.ErrorContains(t, err, "unknown type")

	_, err = parseDefinitions([]byte("programmers:\n  - type: par\n"))
	assert.ErrorContains(t, err, "no id")
}

func TestBuiltinPinMaps(t *testing.T) {
	defs, err := loadProgrammers("")
	require.NoError(t, err)

	pm, err := defs["stk200"].pinMap()
	require.NoError(t, err)
	assert.Equal(t, 9, pm.Reset)
	assert.Equal(t, []int{4, 5}, pm.Buff)

	pm, err = defs["dapa"].pinMap()
	require.NoError(t, err)
	assert.Equal(t, 16|bitbang.PinInverse, pm.Reset)

	pm, err = defs["bsd"].pinMap()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4, 5}, pm.VCC)

	assert.Equal(t, "GPIO25", defs["rpi"].Lines[1])
}

func TestSignatureDryRun(t *testing.T) {
	out, err := run(t, "signature", "-c", "dryrun", "-p", "m328p")
	require.NoError(t, err)

	assert.Contains(t, out, "0x1e950f (ATmega328P)")
	assert.Contains(t, out, "safemode: fuses OK")
}

func TestMissingPartAndProgrammer(t *testing.T) {
	_, err := run(t, "signature", "-c", "dryrun")
	assert.ErrorContains(t, err, "use -p")

	_, err = run(t, "signature", "-p", "m328p")
	assert.ErrorContains(t, err, "use -c")

	_, err = run(t, "signature", "-c", "nosuch", "-p", "m328p")
	assert.ErrorContains(t, err, "not found")

	_, err = run(t, "signature", "-c", "dryrun", "-p", "m9999")
	assert.ErrorContains(t, err, "not found")
}

func TestWriteThenReadDryRun(t *testing.T) {
	image := writeTemp(t, "blink.hex", ":100000000C9434000C9446000C9446000C9446006A\n:00000001FF\n")

	out, err := run(t, "write", "flash", image, "-c", "dryrun", "-p", "t13")
	require.NoError(t, err)
	assert.Contains(t, out, "chip erased")
	assert.Contains(t, out, "16 bytes of flash written")
	assert.Contains(t, out, "16 bytes of flash verified")

	target := dryRunTargets["t13"]
	require.NotNil(t, target)
	assert.Equal(t, []byte{0x0C, 0x94, 0x34, 0x00}, target.Mem[avr.MemFlash][:4])

	backPath := filepath.Join(t.TempDir(), "back.bin")
	out, err = runAgain(t, "read", "flash", backPath, "-f", "raw", "-c", "dryrun", "-p", "t13")
	require.NoError(t, err)
	assert.Contains(t, out, "16 bytes of flash saved")

	back, err := os.ReadFile(backPath)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0C, 0x94, 0x34, 0x00, 0x0C, 0x94, 0x46, 0x00}, back[:8])
}

func TestVerifyMismatch(t *testing.T) {
	image := writeTemp(t, "data.bin", "\x01\x02\x03")

	_, err := run(t, "verify", "eeprom", image, "-c", "dryrun", "-p", "t13", "-f", "raw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verification of eeprom failed at 0x0000")
}

func TestWriteImageTooLarge(t *testing.T) {
	image := writeTemp(t, "big.bin", strings.Repeat("x", 65))

	_, err := run(t, "write", "eeprom", image, "-c", "dryrun", "-p", "t13", "-f", "raw")
	assert.ErrorContains(t, err, "do not fit in eeprom")
}

func TestFusesDryRun(t *testing.T) {
	out, err := run(t, "fuses", "lfuse=0x6A", "-c", "dryrun", "-p", "t13")
	require.NoError(t, err)

	assert.Contains(t, out, "lfuse written: 0x6A")
	assert.Contains(t, out, "0x6A")
	assert.Contains(t, out, "hfuse")
	assert.Contains(t, out, "safemode: fuses OK")
	assert.Equal(t, byte(0x6A), dryRunTargets["t13"].Mem[avr.MemLFuse][0])
}

func TestParseFuseAssignments(t *testing.T) {
	writes, err := parseFuseAssignments([]string{"LFuse=0xE2", "hfuse = 217"})
	require.NoError(t, err)
	assert.Equal(t, []fuseWrite{{"lfuse", 0xE2}, {"hfuse", 217}}, writes)

	_, err = parseFuseAssignments([]string{"lfuse"})
	assert.Error(t, err)
	_, err = parseFuseAssignments([]string{"lock=0"})
	assert.Error(t, err)
	_, err = parseFuseAssignments([]string{"lfuse=0x100"})
	assert.Error(t, err)
}

func TestImageSummary(t *testing.T) {
	image := writeTemp(t, "app.hex", ":04004000AABBCCDDAE\n:00000001FF\n")

	out, err := run(t, "image", image, "-p", "t13")
	require.NoError(t, err)

	assert.Contains(t, out, "68 bytes")
	assert.Contains(t, out, "4 bytes")
	assert.Contains(t, out, "1 of 32, 32 bytes each")
	assert.Contains(t, out, "0040: AA BB CC DD")
}

func TestImageCountsPages(t *testing.T) {
	data := bytes.Repeat([]byte{0xFF}, 100)
	data[0], data[40], data[99] = 1, 2, 3
	assert.Equal(t, 3, touchedPages(data, 32))
	assert.Equal(t, 3, countUsed(data))
}

func TestKeyValueFormatting(t *testing.T) {
	assert.Equal(t, "msg", kvString("msg", nil))
	assert.Equal(t, "msg a=1 b=x", kvString("msg", []interface{}{"a", 1, "b", "x"}))
	assert.Equal(t, "msg a=1 dangling", kvString("msg", []interface{}{"a", 1, "dangling"}))
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	cb := progressBar(&buf)

	cb(progressAt(50))
	cb(progressAt(50))
	cb(progressAt(100))

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "\r"))
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.Contains(t, out, "100.0%")
}

func progressAt(pct float64) isp.Progress {
	return isp.Progress{Phase: isp.PhaseWriting, Memory: avr.MemFlash, Percentage: pct}
}

func TestConnectionDelayFromDefinition(t *testing.T) {
	ispDelay = 0
	c := &connection{def: programmerDef{ID: "x", ISPDelay: "15us"}}
	d, err := c.delay()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Microsecond, d)

	ispDelay = time.Millisecond
	d, err = c.delay()
	require.NoError(t, err)
	assert.Equal(t, time.Millisecond, d)
	ispDelay = 0

	c.def.ISPDelay = "soon"
	_, err = c.delay()
	assert.Error(t, err)
}

func TestAVR910RejectsExtendedParams(t *testing.T) {
	_, err := run(t, "signature", "-c", "avr910", "-p", "m8", "-x", "foo")
	assert.ErrorContains(t, err, "takes no extended parameters")
}

func TestSerialProgrammerNeedsPort(t *testing.T) {
	_, err := run(t, "signature", "-c", "buspirate", "-p", "m328p")
	assert.ErrorContains(t, err, "needs a serial port")
}

func TestBusPirateBadParams(t *testing.T) {
	_, err := run(t, "signature", "-c", "buspirate", "-p", "m328p", "-x", "spifreq=9")
	assert.ErrorContains(t, err, "out of range")
}
