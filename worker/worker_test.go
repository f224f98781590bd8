package worker

import (
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtlemonvh/loopstore/client"
	"github.com/turtlemonvh/loopstore/lib/database"
	"github.com/turtlemonvh/loopstore/server"
)

func newTestSetup(t *testing.T) (*client.Client, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	viper.Set("loop.key_type", "integer")
	viper.Set("loop.lock_for", 3600)
	viper.Set("loop.limit", 100)
	viper.Set("loop.min_loop_time", 0)
	viper.Set("loop.retries", 3)

	db, err := database.Open(filepath.Join(t.TempDir(), "loops.db"))
	require.NoError(t, err)
	server.DB = db
	t.Cleanup(func() { db.Close() })

	srv := httptest.NewServer(server.NewRouter("test"))
	t.Cleanup(srv.Close)

	c := client.New(srv.URL)
	require.NoError(t, c.Create("work_loop"))
	return c, srv.URL
}

func TestWorkerValidatesConf(t *testing.T) {
	err := (&Conf{}).Run()
	assert.ErrorContains(t, err, "loop name")

	err = (&Conf{Loop: "work_loop"}).Run()
	assert.ErrorContains(t, err, "command template")

	err = (&Conf{Loop: "work_loop", Command: "echo {{.Bad"}).Run()
	assert.ErrorContains(t, err, "bad command template")
}

func TestWorkerReportsCompletions(t *testing.T) {
	c, serverURL := newTestSetup(t)

	_, err := c.Add("work_loop", []interface{}{10, 11}, false)
	require.NoError(t, err)

	w := &Conf{
		ServerURL:  serverURL,
		Loop:       "work_loop",
		Command:    "test {{.ID}} -gt 0",
		BatchSize:  10,
		MaxBatches: 1,
	}
	require.NoError(t, w.Run())

	entries, err := c.Check("work_loop", []string{"10", "11"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for id, e := range entries {
		assert.NotNil(t, e.LastUpdated, "id %s should be marked done", id)
		assert.Nil(t, e.LockUntil, "id %s should be unlocked", id)
	}
}

func TestWorkerReleasesFailures(t *testing.T) {
	c, serverURL := newTestSetup(t)

	_, err := c.Add("work_loop", []interface{}{10}, false)
	require.NoError(t, err)

	w := &Conf{
		ServerURL:  serverURL,
		Loop:       "work_loop",
		Command:    "exit 1",
		BatchSize:  10,
		MaxBatches: 1,
	}
	require.NoError(t, w.Run())

	// the failed id is unlocked and untouched, back at the same staleness
	entries, err := c.Check("work_loop", []string{"10"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries["10"].LastUpdated)
	assert.Nil(t, entries["10"].LockUntil)
}
