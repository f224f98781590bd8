package command

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/turtlemonvh/loopstore/worker"
)

var workerConf worker.Conf
var workerCmd = &cobra.Command{
	Use:   "worker <loop>",
	Short: "Claim ids from a loop and run a command for each",
	Run: func(cmd *cobra.Command, args []string) {
		InitializeConfig()
		InitializeLogging()
		if len(args) < 1 {
			fmt.Println("ERROR: Missing required positional argument 'loop'")
			cmd.Usage()
			return
		}
		workerConf.Loop = args[0]
		if workerConf.ServerURL == "" {
			workerConf.ServerURL = fmt.Sprintf("http://localhost:%d", viper.GetInt("port"))
		}
		if workerConf.BatchSize == 0 {
			workerConf.BatchSize = viper.GetInt("worker.batch_size")
		}
		if workerConf.CheckInterval == 0 {
			workerConf.CheckInterval = viper.GetFloat64("worker.check_interval")
		}
		if err := workerConf.Run(); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	workerCmd.Flags().StringVar(&workerConf.Command, "command", "", "Command template to run per id, e.g. 'process --id {{.ID}}'")
	workerCmd.Flags().StringVar(&workerConf.ServerURL, "server", "", "URL of the loopstore server (default http://localhost:<port>)")
	workerCmd.Flags().IntVarP(&workerConf.BatchSize, "batch-size", "b", 0, "Ids to claim per batch (default from config)")
	workerCmd.Flags().Int64Var(&workerConf.LockFor, "lock-for", 0, "Seconds to hold each claim (default from server)")
	workerCmd.Flags().Float64Var(&workerConf.CheckInterval, "check-interval", 0, "Seconds to sleep when the loop is empty")
	workerCmd.Flags().IntVar(&workerConf.MaxBatches, "max-batches", 0, "Exit after this many claims; 0 runs until signalled")
	RootCmd.AddCommand(workerCmd)
}
