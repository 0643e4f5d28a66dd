package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telekom/eventsctl/pkg/eventsctl/output"
	"github.com/telekom/eventsctl/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show eventsctl version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(rt.OutputFormat())
			if err != nil {
				return err
			}
			info := version.GetBuildInfo()
			if format == output.FormatJSON || format == output.FormatYAML {
				return output.WriteObject(rt.Writer(), format, info)
			}
			_, err = fmt.Fprintf(rt.Writer(), "eventsctl %s (commit: %s, built: %s, %s, %s)\n",
				info.Version, info.GitCommit, info.BuildDate, info.GoVersion, info.Platform)
			return err
		},
	}
}
