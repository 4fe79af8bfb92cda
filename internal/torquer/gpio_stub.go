//go:build !linux

package torquer

import "fmt"

// Stub implementation for non-Linux platforms.
func openLines(chipName string, offsets []int, consumer string) (lineSetter, error) {
	return nil, fmt.Errorf("gpio unsupported on this platform")
}
