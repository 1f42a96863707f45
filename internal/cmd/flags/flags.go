// Package flags registers the flags shared by scan commands.
package flags

import (
	"github.com/CompassSecurity/envhunter/pkg/config"
	"github.com/spf13/cobra"
)

// DefaultMaxResponseSize is the default of the --max-response-size flag.
const DefaultMaxResponseSize = "10MB"

// AddCommonScanFlags binds the transport flags to opts. The response size is
// kept as a human readable string and parsed by the command.
func AddCommonScanFlags(cmd *cobra.Command, opts *config.CommonScanOptions, maxResponseSize *string) {
	cmd.Flags().DurationVarP(&opts.RequestTimeout, "timeout", "", opts.RequestTimeout, "Timeout of a single HTTP request e.g. 30s, 1m")
	cmd.Flags().IntVarP(&opts.Retries, "retries", "", opts.Retries, "Retries for failing per-build environment requests (0 disables retries)")
	cmd.Flags().StringVarP(maxResponseSize, "max-response-size", "", DefaultMaxResponseSize, "Max size of a single JSON response e.g. 10MB, 200KB")
}
