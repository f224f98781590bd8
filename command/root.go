package command

import (
	"fmt"
	"os"
	"path"

	"github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/turtlemonvh/loopstore/server"
)

var loopstoreCmdV *cobra.Command
var CfgFile string
var Version string

func init() {
	RootCmd.PersistentFlags().Int32P("port", "p", 8773, "Port the server runs on")
	RootCmd.PersistentFlags().StringVarP(&CfgFile, "config", "c", "", "config file (default is loopstore.yaml|json|toml)")
	RootCmd.AddCommand(versionCmd)
	loopstoreCmdV = RootCmd

	log.SetOutput(os.Stdout)
}

func InitializeConfig() {
	viper.SetDefault("port", 8773)
	viper.SetDefault("database", "loopstore.db")
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("loop.key_type", "integer")
	viper.SetDefault("loop.lock_for", 3600)
	viper.SetDefault("loop.limit", 100)
	viper.SetDefault("loop.min_loop_time", 0)
	viper.SetDefault("loop.retries", 3)
	viper.SetDefault("worker.batch_size", 10)
	viper.SetDefault("worker.check_interval", 2.0)

	viper.SetConfigName("loopstore")
	viper.AddConfigPath("/etc/loopstore/")
	if home, err := homedir.Dir(); err == nil {
		viper.AddConfigPath(path.Join(home, ".loopstore"))
	}
	viper.AddConfigPath(".")
	if CfgFile != "" {
		viper.SetConfigFile(CfgFile)
	}
	if err := viper.ReadInConfig(); err != nil {
		// defaults, flags, and env vars are enough to run
		log.WithFields(log.Fields{
			"err": err.Error(),
		}).Debug("No config file loaded")
	}

	viper.SetEnvPrefix("LOOPSTORE")
	viper.AutomaticEnv()

	viper.BindPFlag("port", loopstoreCmdV.PersistentFlags().Lookup("port"))
}

func InitializeLogging() {
	level, err := log.ParseLevel(viper.GetString("logLevel"))
	if err != nil {
		log.WithFields(log.Fields{
			"logLevel": viper.GetString("logLevel"),
		}).Warn("Unknown log level; using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

var RootCmd = &cobra.Command{
	Use:   "loopstore",
	Short: "Loopstore is a task loop for keeping things updated",
	Long: `A persistent queue for recurring maintenance work: register the ids
of things that need periodic updating (cache entries, search documents,
recommendations), run workers against the loop, and bump ids when they
need attention sooner. Claims, priority, and crash recovery all live in
one small table.`,
	Run: func(cmd *cobra.Command, args []string) {
		InitializeConfig()
		InitializeLogging()
		server.Serve(Version)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of loopstore",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("loopstore " + Version)
	},
}

// Run is the entry point used by main.
func Run(version string) {
	Version = version
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
