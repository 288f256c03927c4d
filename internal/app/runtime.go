package app

import (
	"os"
	"strconv"
	"sync"
)

const testModeEnv = "CATALOG_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	on, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	return on
})

// InTestMode reports whether the binaries run under `go test`, in which case
// main returns before opening storage, Redis or listeners. The flag is read
// once per process.
func InTestMode() bool {
	return testMode()
}
