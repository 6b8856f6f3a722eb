//go:build darwin

package backend

func nativeCandidates() []Backend {
	return []Backend{NewSMC()}
}
