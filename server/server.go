/*

Launch the loopstore server

- Thin HTTP shell over lib/loop: one route per operation, no logic of its own
- All coordination still happens in the backing store, so any number of
  server processes can point at the same database

*/

package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/tylerb/graceful.v1"

	"github.com/turtlemonvh/loopstore/lib/database"
	"github.com/turtlemonvh/loopstore/lib/loop"
)

var DB database.DB

func openDatabase() database.DB {
	db, err := database.Open(viper.GetString("database"))
	if err != nil {
		log.Fatal(err)
	}
	return db
}

// loopForName builds a Loop over the shared store with defaults from config.
// Name validation happens in loop.New, before anything reaches the database.
func loopForName(name string) (*loop.Loop, error) {
	return loop.New(DB, loop.Config{
		Name:        name,
		KeyType:     loop.KeyType(viper.GetString("loop.key_type")),
		LockFor:     viper.GetInt64("loop.lock_for"),
		Limit:       viper.GetInt("loop.limit"),
		MinLoopTime: viper.GetInt64("loop.min_loop_time"),
		Retries:     viper.GetInt("loop.retries"),
	})
}

// NewRouter wires up all routes. Split out from Serve so tests can drive the
// handlers with httptest.
func NewRouter(version string) *gin.Engine {
	r := gin.Default()

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
	})
	r.Use(gin.WrapF(c.HandlerFunc))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":    "loopstore",
			"version": version,
		})
	})
	r.GET("/metrics", MetricsHandler)

	r.POST("/loop/:name/", createLoop)            // create the loop table
	r.POST("/loop/:name/ids", addIds)             // register ids
	r.DELETE("/loop/:name/ids", removeIds)        // forget ids
	r.GET("/loop/:name/ids", checkIds)            // point read, no mutation
	r.POST("/loop/:name/claims", getIds)          // claim a batch
	r.DELETE("/loop/:name/claims", unlockIds)     // release early
	r.POST("/loop/:name/completions", didIds)     // record successful work
	r.POST("/loop/:name/bumps", bumpIds)          // escalate priority
	r.GET("/loop/:name/stats", loopStats)

	return r
}

func Serve(version string) {
	DB = openDatabase()
	defer DB.Close()

	r := NewRouter(version)

	log.WithFields(log.Fields{
		"port":     viper.GetInt("port"),
		"database": viper.GetString("database"),
	}).Warn("Loopstore server started")

	// Graceful shutdown, leaving up to 2 seconds for requests to complete
	srv := &graceful.Server{
		Timeout: 2 * time.Second,
		Server: &http.Server{
			Addr:    fmt.Sprintf(":%d", viper.GetInt("port")),
			Handler: r,
		},
	}
	srv.ListenAndServe()
}
