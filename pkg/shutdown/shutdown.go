// Package shutdown writes a crash dump when the daemon cannot continue,
// so a failed start in a container still leaves diagnostics behind.
package shutdown

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"chatterly/pkg/logger"
)

// Abort logs the fatal error, writes a crash dump next to the data
// directory and exits. Used for unrecoverable startup failures.
func Abort(contextMsg string, err error, dataDir string) {
	logger.Error("startup_fatal", "msg", contextMsg, "error", err)
	if path, derr := writeDump(dataDir, contextMsg, err); derr != nil {
		fmt.Fprintf(os.Stderr, "failed to write crash dump: %v\n", derr)
	} else {
		logger.Error("startup_fatal_crashdump", "path", path)
	}
	os.Exit(2)
}

func writeDump(dataDir, reason string, cause error) (string, error) {
	dir := "./crash"
	if dataDir != "" {
		dir = filepath.Join(dataDir, "crash")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("crash-%d.log", time.Now().UnixNano()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return "", err
	}
	defer f.Close()
	fmt.Fprintf(f, "time: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(f, "reason: %s\n", reason)
	fmt.Fprintf(f, "error: %v\n", cause)
	fmt.Fprintf(f, "\n--- goroutine stacks ---\n")
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	_, _ = f.Write(buf[:n])
	return path, nil
}
