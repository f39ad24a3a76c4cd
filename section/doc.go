// Package section defines the fixed-size records of the on-disk file format.
//
// # File layout
//
// Every binary file starts with a block table: one BlockEntry per (variable, block slot) pair,
// variable-major, followed by the payload.
//
//	+----------------------------------------------+
//	| BlockEntry[v=0][slot=0 .. blocksPerFile-1]   |  8 bytes each
//	| BlockEntry[v=1][...]                         |
//	| ...                                          |
//	+----------------------------------------------+
//	| payload of variable 0 (present blocks only)  |
//	| payload of variable 1                        |
//	| ...                                          |
//	+----------------------------------------------+
//
// A BlockEntry holds the absolute byte offset and byte length of one block, both as big-endian
// uint32. A zero length marks an absent block. The table is always big-endian regardless of the
// byte order configured for sample values.
//
// # Compressed blocks
//
// A compressed block starts with a 16-byte ChunkHeader (compressed length and the three chunk
// dimensions, big-endian uint32) followed by the codec output. A block whose entry length equals
// the uncompressed block size is stored raw.
package section
