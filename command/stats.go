package command

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/turtlemonvh/loopstore/client"
)

var statsConf StatsConf
var statsCmd = &cobra.Command{
	Use:   "stats <loop>",
	Short: "Show counts and age extremes for a loop",
	Run: func(cmd *cobra.Command, args []string) {
		InitializeConfig()
		viper.Set("logLevel", "error")
		InitializeLogging()
		if len(args) < 1 {
			fmt.Println("ERROR: Missing required positional argument 'loop'")
			cmd.Usage()
			os.Exit(1)
		}
		statsConf.ShowStats(args[0])
	},
}

type StatsConf struct {
	ServerURL  string
	Thresholds string
	JSON       bool
}

func init() {
	statsCmd.Flags().StringVar(&statsConf.ServerURL, "server", "", "URL of the loopstore server (default http://localhost:<port>)")
	statsCmd.Flags().StringVar(&statsConf.Thresholds, "thresholds", "", "Delay thresholds in seconds (comma separated)")
	statsCmd.Flags().BoolVar(&statsConf.JSON, "json", false, "Print raw JSON instead of a table")
	RootCmd.AddCommand(statsCmd)
}

func (c *StatsConf) ShowStats(loopName string) {
	if c.ServerURL == "" {
		c.ServerURL = fmt.Sprintf("http://localhost:%d", viper.GetInt("port"))
	}

	var thresholds []int64
	if c.Thresholds != "" {
		for _, part := range strings.Split(c.Thresholds, ",") {
			t, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				log.Fatalf("invalid threshold %q: %s", part, err)
			}
			thresholds = append(thresholds, t)
		}
	}

	cl := client.New(c.ServerURL)
	stats, err := cl.Stats(loopName, thresholds)
	if err != nil {
		log.Fatal(err)
	}

	if c.JSON {
		bts, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(string(bts))
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "total\t%d\n", stats.Total)
	fmt.Fprintf(w, "locked\t%d\n", stats.Locked)
	fmt.Fprintf(w, "bumped\t%d\n", stats.Bumped)
	fmt.Fprintf(w, "updated\t%d\n", stats.Updated)
	fmt.Fprintf(w, "new\t%d\n", stats.New)
	fmt.Fprintf(w, "lock time (min/max)\t%d/%d\n", stats.MinLockTime, stats.MaxLockTime)
	fmt.Fprintf(w, "bump time (min/max)\t%d/%d\n", stats.MinBumpTime, stats.MaxBumpTime)
	fmt.Fprintf(w, "update age (min/max)\t%d/%d\n", stats.MinUpdateTime, stats.MaxUpdateTime)
	for t, n := range stats.Delayed {
		fmt.Fprintf(w, "delayed > %ds\t%d\n", t, n)
	}
	w.Flush()
}
