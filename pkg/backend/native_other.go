//go:build !linux && !freebsd && !darwin

package backend

func nativeCandidates() []Backend {
	return nil
}
