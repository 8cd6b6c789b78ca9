// Package util holds small platform helpers shared across the orchestrator.
package util

import "runtime"

const windowsOS = "windows"

// IsWindows reports whether the process is running on Windows, where file
// paths need case- and separator-normalization before they can be used as
// cache keys.
func IsWindows() bool {
	return runtime.GOOS == windowsOS
}

// LowerDriver lowercases a Windows drive letter ("C:\foo" -> "c:\foo") so
// that path comparisons are stable regardless of how the client spelled the
// drive letter. On non-Windows platforms it is a no-op.
func LowerDriver(path string) string {
	if !IsWindows() || len(path) == 0 {
		return path
	}
	return string(path[0]|0x20) + path[1:]
}
