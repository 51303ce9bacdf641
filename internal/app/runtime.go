package app

import (
	"os"
	"sync"
	"sync/atomic"
)

const testModeEnv = "GYMOPS_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}

// InTestMode reports whether GYMOPS_TEST_MODE=1. Both binaries then return before dialing
// Postgres or Redis, and the router drops the chi access log.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode re-reads GYMOPS_TEST_MODE, for tests that set it after startup.
func RefreshTestMode() {
	detectTestMode()
}
