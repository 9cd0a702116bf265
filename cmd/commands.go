package cmd

import (
	"fmt"

	cli "github.com/spf13/cobra"
)

// Version is overridden at build time through ldflags.
var Version = "dev"

var prologueContents = `tablevault %s

tablevault schedules and executes table backups over a resource hierarchy
`

// New constructs the root command housing all sub commands.
func New() *cli.Command {
	cmd := &cli.Command{
		Use:          "tablevault",
		Long:         fmt.Sprintf(prologueContents, Version),
		SilenceUsage: true,
	}

	cmd.AddCommand(serveCommand())
	cmd.AddCommand(triggerCommand())
	cmd.AddCommand(versionCommand())
	return cmd
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Use:   "version",
		Short: "Print the installed version",
		RunE: func(c *cli.Command, args []string) error {
			fmt.Println(Version)
			return nil
		},
	}
}
