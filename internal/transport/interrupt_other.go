//go:build !unix

package transport

func interrupt(int) error {
	return ErrInterruptUnsupported
}
