/*

Launch the loopstore server

*/

package command

import (
	"github.com/spf13/cobra"

	"github.com/turtlemonvh/loopstore/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the loopstore HTTP server",
	Run: func(cmd *cobra.Command, args []string) {
		InitializeConfig()
		InitializeLogging()
		server.Serve(Version)
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
}
