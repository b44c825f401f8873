// Package mem supplies the general-purpose allocator the scheduler draws
// task stacks from.
package mem

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	KB        = 1024 * Byte
	MB        = 1024 * KB
)

// Words returns the number of 8-byte words needed to hold s.
func (s Size) Words() int {
	return int((s + 7) / 8)
}
