package main

import "unsafe"

// alignedBuffer returns a size-byte slice whose backing array starts on an
// align-byte boundary, as O_DIRECT reads require. align must be a power of
// two.
func alignedBuffer(size, align int) []byte {
	raw := make([]byte, size+align)
	shift := int(uintptr(unsafe.Pointer(&raw[0])) & uintptr(align-1))
	if shift != 0 {
		shift = align - shift
	}
	return raw[shift : shift+size]
}

func alignDown(v, align uint64) uint64 {
	return v &^ (align - 1)
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
