package section

const (
	BlockEntrySize  = 8  // on-disk size of a BlockEntry
	ChunkHeaderSize = 16 // on-disk size of a ChunkHeader
)
