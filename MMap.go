package mabain

// MMap is the byte-slice view of a memory mapped block file.
type MMap []byte
