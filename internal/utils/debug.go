package utils

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"packfetch/internal/config"
)

var (
	debugFile *os.File
	debugOnce sync.Once
	verbose   atomic.Bool
)

// SetVerbose enables or disables verbose logging.
func SetVerbose(enabled bool) {
	verbose.Store(enabled)
}

// IsVerbose returns true if verbose logging is enabled.
func IsVerbose() bool {
	return verbose.Load()
}

// Debug writes a formatted message to the session debug log when verbose
// mode is on. The log file is created lazily under the logs dir.
func Debug(format string, args ...any) {
	if !IsVerbose() {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	debugOnce.Do(func() {
		logsDir := config.GetLogsDir()
		os.MkdirAll(logsDir, 0755)
		debugFile, _ = os.Create(filepath.Join(logsDir, fmt.Sprintf("debug-%s.log", time.Now().Format("20060102-150405"))))
	})
	if debugFile != nil {
		fmt.Fprintf(debugFile, "[%s] %s\n", timestamp, fmt.Sprintf(format, args...))
	}
}

// CleanupLogs removes old log files, keeping only the most recent
// retentionCount files. A negative retention keeps everything.
func CleanupLogs(retentionCount int) {
	if retentionCount < 0 {
		return
	}

	dir := config.GetLogsDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var logs []fs.DirEntry
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), "debug-") && strings.HasSuffix(entry.Name(), ".log") {
			logs = append(logs, entry)
		}
	}

	// Filenames embed YYYYMMDD-HHMMSS, so reverse alphabetical is newest first.
	sort.Slice(logs, func(i, j int) bool {
		return logs[i].Name() > logs[j].Name()
	})

	if len(logs) <= retentionCount {
		return
	}

	for _, log := range logs[retentionCount:] {
		_ = os.Remove(filepath.Join(dir, log.Name()))
	}
}
