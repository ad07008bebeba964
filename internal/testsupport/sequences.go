package testsupport

import (
	"fmt"
	"sync/atomic"
	"time"
)

// testSequence starts from the clock so ids differ across test runs
var testSequence = uint64(time.Now().UnixNano() % 1000000)

// NextSequence returns next unique sequence number
func NextSequence() uint64 {
	return atomic.AddUint64(&testSequence, 1)
}

// UniqueTelegramID returns an id in [100000000, 999999999]
func UniqueTelegramID() int64 {
	return 100000000 + int64(NextSequence()%900000000)
}

// UniqueFilename appends a sequence to base: UniqueFilename("clip", ".mp4") -> "clip_123456.mp4"
func UniqueFilename(base, ext string) string {
	return fmt.Sprintf("%s_%d%s", base, NextSequence(), ext)
}
