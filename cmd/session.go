package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/facchinm/avrdude/isp"
	"github.com/facchinm/avrdude/safemode"
)

// runSession opens the programmer, enters programming mode, checks the
// device signature and runs fn. The session is closed whatever happens.
func runSession(cmd *cobra.Command, fn func(ctx context.Context, prog *isp.Programmer) error) error {
	c, err := connect()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	prog := c.session(cmd.ErrOrStderr())
	ctx, cancel := sessionContext()
	defer cancel()

	err = func() error {
		if err := prog.Start(ctx); err != nil {
			return err
		}
		okf(out, "%s initialized and ready to accept instructions", c.def.ID)

		sig, err := prog.CheckSignature(ctx)
		var mismatch *isp.SignatureMismatchError
		if errors.As(err, &mismatch) {
			errorf(out, "expected signature for %s is %s", c.part.Desc, hexBytes(c.part.Signature[:]))
			warnf(out, "double check the part or use -F to override")
		}
		if err != nil {
			return err
		}
		field(out, "signature", "%s (%s)", hexBytes(sig[:]), c.part.Desc)
		if sig != c.part.Signature {
			warnf(out, "signature does not match %s, continuing because of -F", c.part.Desc)
		}

		return fn(ctx, prog)
	}()

	closeErr := prog.Close()
	var changed *safemode.ChangedError
	if errors.As(closeErr, &changed) {
		for _, ch := range changed.Changes {
			warnf(out, "safemode: %s changed! Was 0x%02X, and is now 0x%02X", ch.Region, ch.Was, ch.Now)
		}
		if changed.Restored {
			okf(out, "safemode: fuses restored")
		}
	}
	if err == nil && closeErr == nil && !noSafemode && !c.noFuses {
		okf(out, "safemode: fuses OK")
	}
	return errors.Join(err, closeErr)
}

func hexBytes(b []byte) string {
	s := "0x"
	for _, v := range b {
		s += fmt.Sprintf("%02x", v)
	}
	return s
}
