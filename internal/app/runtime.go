package app

import (
	"os"
	"sync"
)

const testModeEnv = "ORDERDESK_TEST_MODE"

var inTestMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether the binaries should skip runtime startup.
// Read once; flipping the variable mid-process has no effect.
func InTestMode() bool {
	return inTestMode()
}
