// Package safemode guards fuse memories against unreliable programmers.
//
// Fuses decide the clock source, reset pin and boot behaviour of a part; a
// misread or miswritten fuse can leave a device unreachable. The Verifier
// writes fuses with bounded read-back retries and only trusts a fuse value
// after three identical reads.
//
//	v := safemode.New(backend, part)
//	cache := safemode.NewCache()
//	f, err := v.ReadFuses(cache.Load())
//	if err != nil {
//	    return err // programmer not reliable
//	}
//	cache.Save(f)
//	...
//	err = v.Check(cache, 10) // after the session: restore changed fuses
//
// Regions missing from the part are skipped and never produce an error.
package safemode
