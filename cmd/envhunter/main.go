package main

import (
	"github.com/CompassSecurity/envhunter/internal/cmd/common"
	"github.com/CompassSecurity/envhunter/internal/cmd/jenkins"
	"github.com/spf13/cobra"
)

func main() {
	common.Run(newRootCmd())
}

func newRootCmd() *cobra.Command {
	jenkinsCmd := jenkins.NewJenkinsRootCmd()
	jenkinsCmd.Use = "envhunter"
	jenkinsCmd.Short = "Scan Jenkins builds for secrets in injected environment variables"
	jenkinsCmd.Long = `EnvHunter walks the build history of a Jenkins server and reports injected environment variables that look like credentials.`
	jenkinsCmd.Version = common.Version

	common.SetupPersistentPreRun(jenkinsCmd)
	common.AddCommonFlags(jenkinsCmd)

	jenkinsCmd.SetVersionTemplate(`{{.Version}}
`)

	return jenkinsCmd
}
