// Package guard sets GYMOPS_TEST_MODE=1 for the e2e and perf test packages that blank-import it,
// so the router they build runs without the chi access log.
package guard

import "os"

func init() {
	if os.Getenv("GYMOPS_TEST_MODE") == "" {
		_ = os.Setenv("GYMOPS_TEST_MODE", "1")
	}
}
