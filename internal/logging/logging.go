// Package logging provides the slog-based logging stack shared by the
// publisher, subscriber and recorder processes.
package logging

import (
	"fmt"
	"path/filepath"
	"time"
)

// LogFilePath builds a log file path using OS-appropriate path separators.
func LogFilePath(logsDir, processName string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", processName, sessionStart.Format("20060102_150405")),
	)
}
