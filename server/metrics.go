package server

import (
	"expvar"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Operation counts since process start, exported via expvar so they also
// show up on the standard debug endpoints when enabled.
var opCounts = expvar.NewMap("loopstore.operations")

func countOp(name string) {
	opCounts.Add(name, 1)
}

// Output expvar metrics as json
// From: https://golang.org/src/expvar/expvar.go
func MetricsHandler(c *gin.Context) {
	w := c.Writer
	c.Header("Content-Type", "application/json; charset=utf-8")

	fmt.Fprintf(w, "{\n")
	first := true
	expvar.Do(func(kv expvar.KeyValue) {
		if !first {
			fmt.Fprintf(w, ",\n")
		}
		first = false
		fmt.Fprintf(w, "%q: %s", kv.Key, kv.Value)
	})
	fmt.Fprintf(w, "\n}\n")
	c.Status(http.StatusOK)
}
