package mutation

import (
	"os"
	"syscall"
)

// fileOwner extracts the uid/gid a mutation must restore after writing a
// new file in place of the original. Anna only targets Linux, so reading
// the platform-specific Stat_t directly is simpler than an abstraction
// layer with a single implementation.
func fileOwner(info os.FileInfo) (uid, gid int) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return -1, -1
	}
	return int(stat.Uid), int(stat.Gid)
}

// restoreOwnership chowns path back to uid/gid if both were resolved.
// Failure is non-fatal: a non-root daemon writing into its own sandbox or
// home directory typically already owns the file, and a stricter error
// here would block the common case for a check that rarely matters.
func restoreOwnership(path string, uid, gid int) {
	if uid < 0 || gid < 0 {
		return
	}
	_ = os.Chown(path, uid, gid)
}
