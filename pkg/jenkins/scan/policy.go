package scan

import "github.com/CompassSecurity/envhunter/pkg/scanner/types"

// ReportPolicy selects the entries of a build that are reported.
type ReportPolicy func(snapshot types.EnvSnapshot, sensitive types.EnvSnapshot) types.EnvSnapshot

// SensitiveOnly reports the matched entries only.
func SensitiveOnly(_ types.EnvSnapshot, sensitive types.EnvSnapshot) types.EnvSnapshot {
	return sensitive
}

// ReportAll reports the whole snapshot.
func ReportAll(snapshot types.EnvSnapshot, _ types.EnvSnapshot) types.EnvSnapshot {
	return snapshot
}

// PolicyFor returns the policy for the given mode.
func PolicyFor(reportAll bool) ReportPolicy {
	if reportAll {
		return ReportAll
	}
	return SensitiveOnly
}
