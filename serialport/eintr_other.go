//go:build !unix

package serialport

func isRetryable(error) bool { return false }
