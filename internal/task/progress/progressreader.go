// Package progress provides an io.Reader wrapper that reports transfer
// progress at byte intervals.
package progress

import "io"

type Reader struct {
	inner      io.Reader
	total      int64
	onProgress func(written int64, total int64)
	read       int64
	sinceLast  int64
	interval   int64
}

// NewReader wraps r; cb fires roughly every interval bytes. A zero total
// means the size is unknown and cb receives total=0.
func NewReader(r io.Reader, total, interval int64, cb func(written int64, total int64)) *Reader {
	return &Reader{
		inner:      r,
		total:      total,
		onProgress: cb,
		interval:   interval,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.inner.Read(p)
	if n > 0 {
		pr.read += int64(n)
		pr.sinceLast += int64(n)

		if pr.sinceLast >= pr.interval {
			pr.onProgress(pr.read, pr.total)
			pr.sinceLast = 0
		}
	}

	return n, err
}
