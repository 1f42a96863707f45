// Package jenkinstest provides an in-memory Jenkins server exposing the job,
// build and injected environment JSON endpoints, for tests and local demos.
package jenkinstest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// Build is a mocked build. EnvMap is the raw JSON object served as "envMap";
// an empty EnvMap makes the injected environment endpoint answer 404.
type Build struct {
	Number int
	EnvMap string
	// EnvStatus overrides the status of the injected environment endpoint
	EnvStatus int
	// EnvBody overrides the whole injected environment response body
	EnvBody string
}

// Job is a mocked job with its builds in listing order.
type Job struct {
	Name   string
	Builds []Build
	// BuildListingStatus overrides the status of the build listing endpoint
	BuildListingStatus int
}

// RecordedRequest captures a request received by the server.
type RecordedRequest struct {
	Method        string
	Path          string
	RawQuery      string
	Authorization string
}

// Jenkins is an http.Handler serving the mocked data.
type Jenkins struct {
	Jobs []Job
	// JobListingStatus overrides the status of the job listing endpoint
	JobListingStatus int
	// Username and Token enable basic auth checks when set
	Username string
	Token    string

	mu       sync.Mutex
	requests []RecordedRequest
}

// NewServer starts an httptest server for the given Jenkins.
func NewServer(j *Jenkins) *httptest.Server {
	return httptest.NewServer(j)
}

// EnvMap builds an ordered JSON object from key/value pairs.
func EnvMap(pairs ...string) string {
	var sb strings.Builder
	sb.WriteString("{")
	for i := 0; i+1 < len(pairs); i += 2 {
		if i > 0 {
			sb.WriteString(",")
		}
		k, _ := json.Marshal(pairs[i])
		v, _ := json.Marshal(pairs[i+1])
		sb.Write(k)
		sb.WriteString(":")
		sb.Write(v)
	}
	sb.WriteString("}")
	return sb.String()
}

// Requests returns a copy of all recorded requests.
func (j *Jenkins) Requests() []RecordedRequest {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]RecordedRequest{}, j.requests...)
}

// RequestedPaths returns the paths of all recorded requests.
func (j *Jenkins) RequestedPaths() []string {
	paths := []string{}
	for _, r := range j.Requests() {
		paths = append(paths, r.Path)
	}
	return paths
}

func (j *Jenkins) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	j.mu.Lock()
	j.requests = append(j.requests, RecordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		RawQuery:      r.URL.RawQuery,
		Authorization: r.Header.Get("Authorization"),
	})
	j.mu.Unlock()

	if j.Username != "" || j.Token != "" {
		user, token, ok := r.BasicAuth()
		if !ok || user != j.Username || token != j.Token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	root := "http://" + r.Host + "/"
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	switch {
	case r.URL.Path == "/api/json":
		j.serveJobs(w, root)
	case len(parts) == 4 && parts[0] == "job" && parts[2] == "api" && parts[3] == "json":
		j.serveBuilds(w, root, parts[1])
	case len(parts) == 6 && parts[0] == "job" && parts[3] == "injectedEnvVars" && parts[4] == "api" && parts[5] == "json":
		j.serveEnv(w, parts[1], parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (j *Jenkins) serveJobs(w http.ResponseWriter, root string) {
	if j.JobListingStatus != 0 && j.JobListingStatus != http.StatusOK {
		w.WriteHeader(j.JobListingStatus)
		return
	}

	jobs := []map[string]string{}
	for _, job := range j.Jobs {
		jobs = append(jobs, map[string]string{
			"name": job.Name,
			"url":  root + "job/" + url.PathEscape(job.Name) + "/",
		})
	}
	writeJSON(w, map[string]interface{}{"jobs": jobs})
}

func (j *Jenkins) findJob(name string) (Job, bool) {
	for _, job := range j.Jobs {
		if job.Name == name {
			return job, true
		}
	}
	return Job{}, false
}

func (j *Jenkins) serveBuilds(w http.ResponseWriter, root string, name string) {
	job, ok := j.findJob(name)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if job.BuildListingStatus != 0 && job.BuildListingStatus != http.StatusOK {
		w.WriteHeader(job.BuildListingStatus)
		return
	}

	builds := []map[string]interface{}{}
	for _, build := range job.Builds {
		builds = append(builds, map[string]interface{}{
			"number": build.Number,
			"url":    fmt.Sprintf("%sjob/%s/%d/", root, url.PathEscape(job.Name), build.Number),
		})
	}
	writeJSON(w, map[string]interface{}{"builds": builds})
}

func (j *Jenkins) serveEnv(w http.ResponseWriter, name string, number string) {
	job, ok := j.findJob(name)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	n, err := strconv.Atoi(number)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	for _, build := range job.Builds {
		if build.Number != n {
			continue
		}
		switch {
		case build.EnvStatus != 0 && build.EnvStatus != http.StatusOK:
			w.WriteHeader(build.EnvStatus)
		case build.EnvBody != "":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(build.EnvBody))
		case build.EnvMap == "":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"_class":"org.jenkinsci.lib.envinject.EnvInjectAction","envMap":` + build.EnvMap + `}`))
		}
		return
	}

	w.WriteHeader(http.StatusNotFound)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
