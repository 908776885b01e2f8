// Package buspirate programs AVRs through a Bus Pirate on a serial port.
//
// Enable first tries the binary I/O mode and enters its SPI (or raw-wire)
// submode. Firmware 5.10 and later adds a write-then-read command used for
// paged flash writes, and firmware with the AVR extended commands can read
// flash in bulk; both are probed and reported through Capabilities. When
// the firmware has no binary mode the text menu interface is used instead,
// one instruction per line.
//
//	link, err := serialport.Open("/dev/ttyUSB0", 115200)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	bp := buspirate.New(link, buspirate.WithSPIFreq(3))
//	prog := isp.New(bp, part)
//
// BitbangPins drives the Bus Pirate lines individually from binary mode
// for use with a bitbang.Programmer.
package buspirate
