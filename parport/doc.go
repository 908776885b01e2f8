// Package parport drives an AVR through the pins of a PC parallel port.
//
// A Port turns the data, control and status registers into the numbered
// connector pins 1 to 17, taking care of the lines the port hardware
// inverts. It implements bitbang.Pins, so a bitbang.Programmer can run the
// serial programming protocol over it:
//
//	pm := bitbang.PinMap{Reset: 9, SCK: 7, MOSI: 8, MISO: 10, VCC: []int{2, 3, 4, 5, 6}}
//	port, err := parport.OpenDevice("/dev/parport0", pm)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	bb, err := bitbang.New(port, pm)
//
// On Linux the registers are accessed through the ppdev driver. Any other
// register access can be plugged in through the Registers interface.
package parport
