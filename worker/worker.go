package worker

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"text/template"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/turtlemonvh/loopstore/client"
)

// Conf drives one worker process. Workers are plain clients of the claim
// protocol: they hold no state the server needs, so run as many as you like
// (a crontab entry per loop is typical) and kill them freely; anything they
// were holding unlocks by itself when the claim expires.
type Conf struct {
	// ServerURL of a running loopstore server.
	ServerURL string
	// Loop to work through.
	Loop string
	// Command is a template run per id through `sh -c`, e.g.
	// "reindex-biz --id {{.ID}}". Exit 0 reports the id done; anything else
	// releases it back to the queue untouched.
	Command string
	// BatchSize ids per claim; 0 uses the server default.
	BatchSize int
	// LockFor seconds per claim; pick an upper bound for BatchSize runs of
	// Command. 0 uses the server default.
	LockFor int64
	// CheckInterval is how many seconds to idle when a claim comes back
	// empty (minimum 0.5).
	CheckInterval float64
	// MaxBatches stops the worker after that many claims; 0 means run until
	// signalled. Mostly for tests and one-shot cron runs.
	MaxBatches int

	id       string
	stopping bool
}

type commandContext struct {
	ID   interface{}
	Loop string
}

// Run claims batches and works through them until stopped.
func (c *Conf) Run() error {
	if c.Loop == "" {
		return fmt.Errorf("worker requires a loop name")
	}
	if c.Command == "" {
		return fmt.Errorf("worker requires a command template")
	}
	tmpl, err := template.New("command").Parse(c.Command)
	if err != nil {
		return fmt.Errorf("bad command template: %w", err)
	}
	if c.CheckInterval < 0.5 {
		c.CheckInterval = 0.5
	}
	c.id = uuid.New().String()

	// Finish the current batch before exiting; claimed ids would unlock on
	// their own eventually, but releasing promptly is politer to other
	// workers.
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt)
	signal.Notify(shutdownChan, syscall.SIGTERM)
	go func() {
		<-shutdownChan
		log.Warn("Received shutdown signal; stopping after current batch")
		c.stopping = true
	}()

	cl := client.New(c.ServerURL)

	log.WithFields(log.Fields{
		"workerId":  c.id,
		"loop":      c.Loop,
		"batchSize": c.BatchSize,
	}).Info("Worker started")

	batches := 0
	for !c.stopping {
		ids, err := cl.Get(c.Loop, c.BatchSize, c.LockFor, 0)
		if err != nil {
			return err
		}

		if len(ids) == 0 {
			log.WithFields(log.Fields{
				"workerId": c.id,
				"loop":     c.Loop,
			}).Debug("Nothing to do")
			time.Sleep(time.Duration(c.CheckInterval * float64(time.Second)))
		} else {
			c.workBatch(cl, tmpl, ids)
		}

		batches++
		if c.MaxBatches > 0 && batches >= c.MaxBatches {
			break
		}
	}

	log.WithFields(log.Fields{
		"workerId": c.id,
	}).Info("Worker stopped")
	return nil
}

// workBatch runs the command for each claimed id, then reports completions
// and releases failures in bulk.
func (c *Conf) workBatch(cl *client.Client, tmpl *template.Template, ids []interface{}) {
	var done, failed []interface{}
	for _, id := range ids {
		if err := c.runCommand(tmpl, id); err != nil {
			log.WithFields(log.Fields{
				"workerId": c.id,
				"loop":     c.Loop,
				"id":       id,
				"err":      err.Error(),
			}).Error("Update command failed")
			failed = append(failed, id)
		} else {
			done = append(done, id)
		}
	}

	if len(done) > 0 {
		if _, err := cl.Did(c.Loop, done); err != nil {
			log.WithFields(log.Fields{
				"workerId": c.id,
				"err":      err.Error(),
			}).Error("Problem reporting completions; claims will expire on their own")
		}
	}
	if len(failed) > 0 {
		if _, err := cl.Unlock(c.Loop, failed); err != nil {
			log.WithFields(log.Fields{
				"workerId": c.id,
				"err":      err.Error(),
			}).Error("Problem releasing failed ids; claims will expire on their own")
		}
	}
}

func (c *Conf) runCommand(tmpl *template.Template, id interface{}) error {
	var script bytes.Buffer
	if err := tmpl.Execute(&script, commandContext{ID: id, Loop: c.Loop}); err != nil {
		return err
	}

	cmd := exec.Command("sh", "-c", script.String())
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	log.WithFields(log.Fields{
		"workerId": c.id,
		"id":       id,
		"command":  script.String(),
	}).Debug("Running update command")

	return cmd.Run()
}
