package cmd

import (
	"fmt"

	cli "github.com/spf13/cobra"

	"github.com/odpf/tablevault/config"
	"github.com/odpf/tablevault/server"
)

func serveCommand() *cli.Command {
	var configDirPath string
	cmd := &cli.Command{
		Use:     "serve",
		Short:   "Starts the tablevault service",
		Example: "tablevault serve",
	}

	cmd.Flags().StringVarP(&configDirPath, "config", "c", ".", "Directory holding the server configuration file")

	cmd.RunE = func(c *cli.Command, args []string) error {
		conf, err := config.LoadServerConfig(configDirPath)
		if err != nil {
			return err
		}

		srv, err := server.New(*conf)
		if err != nil {
			return fmt.Errorf("unable to create server: %w", err)
		}
		defer srv.Shutdown()
		return srv.Serve()
	}

	return cmd
}
