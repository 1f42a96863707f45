package types

// EnvVar is a single injected environment variable of a build.
type EnvVar struct {
	Key string
	// Value is the textual form used for matching and reporting
	Value string
	// Raw is the value exactly as it appeared in the JSON document
	Raw string
}

// EnvSnapshot is the ordered set of variables recorded for one build.
// Keys are unique within a snapshot.
type EnvSnapshot []EnvVar

// Keys returns the variable names in snapshot order.
func (s EnvSnapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for _, v := range s {
		keys = append(keys, v.Key)
	}
	return keys
}

// Lookup returns the variable with the given name.
func (s EnvSnapshot) Lookup(key string) (EnvVar, bool) {
	for _, v := range s {
		if v.Key == key {
			return v, true
		}
	}
	return EnvVar{}, false
}
