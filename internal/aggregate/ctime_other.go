//go:build !linux && !darwin

package aggregate

import (
	"os"
	"time"
)

// No portable ctime here; fall back to the modification time.
func changeTime(info os.FileInfo) time.Time {
	return info.ModTime()
}
