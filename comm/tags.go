package comm

// Tag bases of the pipeline phases. A phase adds the variable index to its base, so exchanges of
// different phases and variables never match each other's receives.
const (
	TagRestructure = 0
	TagScatter     = 1 << 20
	TagAggregate   = 2 << 20
	TagDistribute  = 3 << 20
)
