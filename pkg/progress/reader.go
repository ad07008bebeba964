package progress

import (
	"context"
	"io"
)

// Reader reports every read through a Tracker and stops when ctx is done or
// the tracker's check fails
type Reader struct {
	ctx     context.Context
	r       io.Reader
	tracker *Tracker
	total   int64
	read    int64
}

// NewReader wraps r; total may be 0 when unknown
func NewReader(ctx context.Context, r io.Reader, total int64, tracker *Tracker) *Reader {
	return &Reader{ctx: ctx, r: r, tracker: tracker, total: total}
}

func (pr *Reader) Read(p []byte) (int, error) {
	if err := pr.ctx.Err(); err != nil {
		return 0, err
	}

	n, err := pr.r.Read(p)
	if n > 0 {
		pr.read += int64(n)
		if rerr := pr.tracker.Report(pr.read, pr.total); rerr != nil {
			return n, rerr
		}
	}
	if err == io.EOF && pr.total <= 0 {
		pr.tracker.Complete()
	}
	return n, err
}

// BytesRead returns the number of bytes consumed so far
func (pr *Reader) BytesRead() int64 {
	return pr.read
}
