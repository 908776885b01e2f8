package safemode

import "github.com/facchinm/avrdude/avr"

// Regions lists the fuse memories checked, in order.
var Regions = []string{avr.MemFuse, avr.MemLFuse, avr.MemHFuse, avr.MemEFuse}

var regionCodes = map[string]int{
	avr.MemFuse:  CodeFuse,
	avr.MemLFuse: CodeLFuse,
	avr.MemHFuse: CodeHFuse,
	avr.MemEFuse: CodeEFuse,
}

// Fuses holds one value per fuse region.
type Fuses struct {
	Fuse  byte
	LFuse byte
	HFuse byte
	EFuse byte
}

// Get returns the value of the named region.
func (f Fuses) Get(region string) byte {
	switch region {
	case avr.MemFuse:
		return f.Fuse
	case avr.MemLFuse:
		return f.LFuse
	case avr.MemHFuse:
		return f.HFuse
	case avr.MemEFuse:
		return f.EFuse
	}
	return 0
}

// Set returns a copy of f with the named region set to v.
func (f Fuses) Set(region string, v byte) Fuses {
	switch region {
	case avr.MemFuse:
		f.Fuse = v
	case avr.MemLFuse:
		f.LFuse = v
	case avr.MemHFuse:
		f.HFuse = v
	case avr.MemEFuse:
		f.EFuse = v
	}
	return f
}

// Cache holds the fuse values saved at the start of a session.
type Cache struct {
	fuses Fuses
	saved bool
}

// NewCache returns a cache holding the erased value 0xFF for every region.
func NewCache() *Cache {
	return &Cache{fuses: Fuses{Fuse: 0xFF, LFuse: 0xFF, HFuse: 0xFF, EFuse: 0xFF}}
}

// Save stores f.
func (c *Cache) Save(f Fuses) {
	c.fuses = f
	c.saved = true
}

// Load returns the stored values.
func (c *Cache) Load() Fuses {
	return c.fuses
}

// Saved reports whether Save has been called.
func (c *Cache) Saved() bool {
	return c.saved
}
