//go:build linux

package parport

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/facchinm/avrdude/bitbang"
)

// ppdev ioctl requests, from linux/ppdev.h
const (
	ppClaim    = 0x708b
	ppRelease  = 0x708c
	ppRStatus  = 0x80017081
	ppRControl = 0x80017083
	ppWControl = 0x40017084
	ppRData    = 0x80017085
	ppWData    = 0x40017086
)

// ppdev accesses the registers through the Linux ppdev driver.
type ppdev struct {
	fd int
}

// OpenDevice claims a ppdev port such as /dev/parport0 and opens it as a
// Port.
func OpenDevice(path string, pm bitbang.PinMap, opts ...Option) (*Port, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := ioctl(fd, ppClaim, 0); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("claim %s: %w", path, err)
	}

	port, err := Open(&ppdev{fd: fd}, pm, opts...)
	if err != nil {
		_ = ioctl(fd, ppRelease, 0)
		unix.Close(fd)
		return nil, err
	}
	return port, nil
}

func (d *ppdev) Read(r Register) (byte, error) {
	var req uintptr
	switch r {
	case Data:
		req = ppRData
	case Control:
		req = ppRControl
	case Status:
		req = ppRStatus
	default:
		return 0, fmt.Errorf("read %v: no such register", r)
	}

	var v byte
	if err := ioctlPtr(d.fd, req, unsafe.Pointer(&v)); err != nil {
		return 0, fmt.Errorf("read %v register: %w", r, err)
	}
	return v, nil
}

func (d *ppdev) Write(r Register, v byte) error {
	var req uintptr
	switch r {
	case Data:
		req = ppWData
	case Control:
		req = ppWControl
	default:
		return fmt.Errorf("write %v: register is read-only", r)
	}

	if err := ioctlPtr(d.fd, req, unsafe.Pointer(&v)); err != nil {
		return fmt.Errorf("write %v register: %w", r, err)
	}
	return nil
}

func (d *ppdev) Close() error {
	err := ioctl(d.fd, ppRelease, 0)
	if cerr := unix.Close(d.fd); err == nil {
		err = cerr
	}
	return err
}

func ioctlPtr(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func ioctl(fd int, req, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, arg)
	if errno != 0 {
		return errno
	}
	return nil
}
