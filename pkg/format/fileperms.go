package format

import "io/fs"

// File permission constants used instead of magic numbers.
const (
	// FileUserReadWrite is for files that should only be readable by owner (rw-------).
	// Reports and log files contain discovered secrets.
	FileUserReadWrite fs.FileMode = 0600
)
