package jenkins

// Job is a Jenkins job as returned by the top level job listing.
type Job struct {
	Name string
	URL  string
}

// Build is a single numbered execution of a Job.
type Build struct {
	Number int
	URL    string
}
