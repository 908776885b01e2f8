package buspirate

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/facchinm/avrdude/protocol"
)

// Link is the serial connection to the Bus Pirate. A Read that returns
// no data and no error means the read timeout expired.
type Link interface {
	io.ReadWriter
	SetReadTimeout(t time.Duration) error
}

// Drainer is implemented by links that can discard pending input
// themselves. Other links are drained by reading until a timeout.
type Drainer interface {
	Drain() error
}

// send writes all of data to the link.
func (b *Programmer) send(data []byte) error {
	b.logTrace("send", data)
	for len(data) > 0 {
		n, err := b.link.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// recv reads exactly n bytes. A timeout before n bytes arrive returns the
// bytes read so far and a *protocol.NotRespondingError.
func (b *Programmer) recv(n int) ([]byte, error) {
	buf := make([]byte, n)
	got := 0
	for got < n {
		m, err := b.link.Read(buf[got:])
		if err != nil {
			return buf[:got], err
		}
		if m == 0 {
			b.logTrace("recv (timeout)", buf[:got])
			return buf[:got], &protocol.NotRespondingError{Operation: "read", Timeout: b.config.RecvTimeout}
		}
		got += m
	}
	b.logTrace("recv", buf)
	return buf, nil
}

// expectByte sends one command byte and reports whether the answer is
// want. The answer is returned either way.
func (b *Programmer) expectByte(cmd, want byte) (byte, bool, error) {
	if err := b.send([]byte{cmd}); err != nil {
		return 0, false, err
	}
	res, err := b.recv(1)
	if err != nil {
		return 0, false, err
	}
	return res[0], res[0] == want, nil
}

// drain discards pending input.
func (b *Programmer) drain() error {
	if d, ok := b.link.(Drainer); ok {
		return d.Drain()
	}
	buf := make([]byte, 64)
	for {
		n, err := b.link.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

// getc reads one byte of text; ok is false on timeout.
func (b *Programmer) getc() (byte, bool, error) {
	var c [1]byte
	n, err := b.link.Read(c[:])
	if err != nil || n == 0 {
		return 0, false, err
	}
	return c[0], true, nil
}

// readLine reads one line of text without its line ending. A prompt has
// no line ending and is returned when the read times out. ok is false when
// nothing at all arrived. The first byte may take LineTimeout to arrive.
func (b *Programmer) readLine() (line string, ok bool, err error) {
	if err := b.link.SetReadTimeout(b.config.LineTimeout); err != nil {
		return "", false, err
	}
	restored := false
	restore := func() error {
		if restored {
			return nil
		}
		restored = true
		return b.link.SetReadTimeout(b.config.RecvTimeout)
	}

	var buf bytes.Buffer
	for {
		c, got, err := b.getc()
		if err != nil {
			_ = restore()
			return "", false, err
		}
		if !got {
			break
		}
		if !ok {
			ok = true
			if err := restore(); err != nil {
				return "", false, err
			}
		}
		if c == '\n' {
			break
		}
		if c == '\r' {
			continue
		}
		buf.WriteByte(c)
	}
	if err := restore(); err != nil {
		return "", false, err
	}
	if ok {
		b.logDebug("readline", "line", buf.String())
	}
	return buf.String(), ok, nil
}

// mustReadLine is readLine where silence is an error.
func (b *Programmer) mustReadLine(op string) (string, error) {
	line, ok, err := b.readLine()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &protocol.NotRespondingError{Operation: op, Timeout: b.config.LineTimeout}
	}
	return line, nil
}

// isPrompt reports whether s ends like a Bus Pirate prompt, with '>' or
// "> ".
func isPrompt(s string) bool {
	return strings.HasSuffix(s, ">") || strings.HasSuffix(s, "> ")
}
