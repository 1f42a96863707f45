package scanner

import (
	"context"
	"slices"

	"github.com/CompassSecurity/envhunter/pkg/format"
	"github.com/rs/zerolog/log"
	"github.com/trufflesecurity/trufflehog/v3/pkg/detectors"
	"github.com/trufflesecurity/trufflehog/v3/pkg/engine/defaults"
	"github.com/wandb/parallel"
)

// DefaultDetectorThreads bounds the detectors running at the same time.
const DefaultDetectorThreads = 4

// detector is the part of a trufflehog detector the annotator relies on.
type detector interface {
	FromData(ctx context.Context, verify bool, data []byte) ([]detectors.Result, error)
	Keywords() []string
}

// DetectorAnnotator names the trufflehog detectors that recognise a value.
type DetectorAnnotator struct {
	detectors []detector
	verify    bool
	threads   int
}

// NewDetectorAnnotator loads trufflehog's default detectors. With verify set,
// only credentials confirmed live by the detector are reported.
func NewDetectorAnnotator(verify bool, threads int) *DetectorAnnotator {
	if threads <= 0 {
		threads = DefaultDetectorThreads
	}

	all := defaults.DefaultDetectors()
	dets := make([]detector, 0, len(all))
	for _, d := range all {
		dets = append(dets, d)
	}
	return &DetectorAnnotator{detectors: dets, verify: verify, threads: threads}
}

// Annotate returns the sorted, unique detector names matching value.
func (a *DetectorAnnotator) Annotate(ctx context.Context, value string) []string {
	names := []string{}
	if value == "" {
		return names
	}

	threads := a.threads
	if threads <= 0 {
		threads = DefaultDetectorThreads
	}

	data := []byte(value)
	group := parallel.Collect[[]string](parallel.Limited(ctx, threads))
	for _, d := range a.detectors {
		if !hasKeyword(value, d.Keywords()) {
			continue
		}

		group.Go(func(ctx context.Context) ([]string, error) {
			results, err := d.FromData(ctx, a.verify, data)
			if err != nil {
				// a failing detector must not hide the others
				log.Trace().Err(err).Msg("Trufflehog detector failed")
				return nil, nil
			}

			found := []string{}
			for _, result := range results {
				if a.verify && !result.Verified {
					continue
				}
				found = append(found, result.DetectorType.String())
			}
			return found, nil
		})
	}

	results, err := group.Wait()
	if err != nil {
		log.Debug().Err(err).Msg("Failed waiting for trufflehog detectors")
	}

	for _, name := range slices.Concat(results...) {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}

	slices.Sort(names)
	return names
}

func hasKeyword(value string, keywords []string) bool {
	for _, kw := range keywords {
		if format.ContainsI(value, kw) {
			return true
		}
	}
	return false
}
