//go:build debug

package debug

import (
	"fmt"
	"sync"
)

func ON() bool { return true }

func Assert(cond bool, args ...any) {
	if !cond {
		panic(fmt.Sprintln(append([]any{"assertion failed:"}, args...)...))
	}
}

func Assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("assertion failed: "+format, args...))
	}
}

func AssertNoErr(err error) {
	if err != nil {
		panic(err)
	}
}

// AssertMutexLocked checks nothing: sync.Mutex exposes no side-effect-free
// way to tell whether the calling goroutine holds it. Callers are expected
// to hold the lock when calling this; it only documents that expectation at
// call sites.
func AssertMutexLocked(_ *sync.Mutex) {}
