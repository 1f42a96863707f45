package jenkins

import (
	"github.com/CompassSecurity/envhunter/internal/cmd/jenkins/scan"
	"github.com/spf13/cobra"
)

func NewJenkinsRootCmd() *cobra.Command {
	jenkinsCmd := &cobra.Command{
		Use:   "jenkins [command]",
		Short: "Jenkins related commands",
		Long:  "Audit Jenkins build history for secrets exposed through injected environment variables (EnvInject plugin).",
	}

	jenkinsCmd.AddCommand(scan.NewScanCmd())

	return jenkinsCmd
}
