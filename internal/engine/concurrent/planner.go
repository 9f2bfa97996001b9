package concurrent

import "github.com/romreviewer/DOWNitUP/internal/engine/types"

// Range is one planned inclusive byte range.
type Range struct {
	Index int
	Start int64
	End   int64
}

func (r Range) Size() int64 {
	return r.End - r.Start + 1
}

// Plan splits total bytes into n contiguous ranges. Every range gets
// total/n bytes and the last one absorbs the remainder.
func Plan(total int64, n int) ([]Range, error) {
	if n < 1 || total < int64(n) {
		return nil, &types.InvalidPlanError{TotalBytes: total, Connections: n}
	}

	size := total / int64(n)
	ranges := make([]Range, n)
	for i := 0; i < n; i++ {
		ranges[i] = Range{
			Index: i,
			Start: int64(i) * size,
			End:   int64(i+1)*size - 1,
		}
	}
	ranges[n-1].End = total - 1
	return ranges, nil
}
