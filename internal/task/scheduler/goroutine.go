package scheduler

import (
	"bytes"
	"runtime"
)

// goroutineID parses the current goroutine id from runtime.Stack. It returns
// 0 if the header cannot be parsed. Only Stop uses it, to detect a blocking
// stop issued from the worker itself.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}
	var id uint64
	for _, c := range b[len(prefix):] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}
