package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

// RootCmd is the root command for turnstile
var RootCmd = &cobra.Command{
	Use:              "turnstile",
	Short:            "turnstile peer-group admission control",
	TraverseChildren: true,
}

func init() {
	RootCmd.AddCommand(
		NewRunCmd(),
		NewKeygenCmd(),
		NewCertifyCmd(),
		VersionCmd,
	)
}
