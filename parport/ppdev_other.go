//go:build !linux

package parport

import (
	"github.com/facchinm/avrdude/bitbang"
	"github.com/facchinm/avrdude/protocol"
)

// OpenDevice is only available on Linux.
func OpenDevice(path string, pm bitbang.PinMap, opts ...Option) (*Port, error) {
	return nil, &protocol.UnsupportedError{Operation: "open " + path, Reason: "parallel port access needs Linux ppdev"}
}
