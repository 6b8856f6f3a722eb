//go:build freebsd

package backend

import "golang.org/x/sys/unix"

func nativeCandidates() []Backend {
	return []Backend{newACPIBSD(unix.SysctlUint32)}
}
