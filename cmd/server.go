package cmd

import (
	"github.com/spf13/cobra"

	"consult-edge/config"
	server2 "consult-edge/server"
)

func server(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "start the consultation edge agent",
		Run: func(cmd *cobra.Command, args []string) {
			server2.RunHttp(config)
		},
	}
}
