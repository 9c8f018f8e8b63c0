//go:build !linux

package petra

import (
	"io/fs"
	"time"
)

// atimeOf falls back to ModTime on platforms whose syscall.Stat_t layout
// isn't handled here. This loses true access-time precision but keeps
// the library portable; the atime value only ever feeds the informational
// Result.Atime field, never the hit/miss decision, which is driven
// entirely by mtime.
func atimeOf(info fs.FileInfo) time.Time {
	return info.ModTime()
}
