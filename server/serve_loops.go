package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/turtlemonvh/loopstore/lib/loop"
)

type idsRequest struct {
	IDs       []interface{} `json:"ids"`
	Updated   bool          `json:"updated"`
	NoAutoAdd bool          `json:"noAutoAdd"`
	// CompletedAt and At are epoch seconds; 0 means now
	CompletedAt int64 `json:"completedAt"`
	At          int64 `json:"at"`
	LockFor     int64 `json:"lockFor"`
}

type claimRequest struct {
	Limit       int   `json:"limit"`
	LockFor     int64 `json:"lockFor"`
	MinLoopTime int64 `json:"minLoopTime"`
}

// handleLoopError maps library errors onto status codes: bad input is the
// caller's fault, a missing table means the loop was never created, anything
// else is the store's problem.
func handleLoopError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, loop.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case strings.Contains(err.Error(), "no such table"):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func requestLoop(c *gin.Context) (*loop.Loop, bool) {
	l, err := loopForName(c.Param("name"))
	if err != nil {
		handleLoopError(c, err)
		return nil, false
	}
	return l, true
}

func bindIds(c *gin.Context) (*idsRequest, bool) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return &req, true
}

func epochTime(secs int64) time.Time {
	if secs == 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}

func createLoop(c *gin.Context) {
	countOp("create")
	l, ok := requestLoop(c)
	if !ok {
		return
	}
	if err := l.Create(c.Request.Context()); err != nil {
		handleLoopError(c, err)
		return
	}
	log.WithFields(log.Fields{
		"loop": l.Name(),
	}).Info("Created loop table")
	c.JSON(http.StatusCreated, gin.H{"loop": l.Name()})
}

func addIds(c *gin.Context) {
	countOp("add")
	l, ok := requestLoop(c)
	if !ok {
		return
	}
	req, ok := bindIds(c)
	if !ok {
		return
	}

	var n int64
	var err error
	if req.Updated {
		n, err = l.AddUpdated(c.Request.Context(), req.IDs)
	} else {
		n, err = l.Add(c.Request.Context(), req.IDs)
	}
	if err != nil {
		handleLoopError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func removeIds(c *gin.Context) {
	countOp("remove")
	l, ok := requestLoop(c)
	if !ok {
		return
	}
	req, ok := bindIds(c)
	if !ok {
		return
	}

	n, err := l.Remove(c.Request.Context(), req.IDs)
	if err != nil {
		handleLoopError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func getIds(c *gin.Context) {
	countOp("get")
	l, ok := requestLoop(c)
	if !ok {
		return
	}
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	log.WithFields(log.Fields{
		"loop":        c.Param("name"),
		"limit":       req.Limit,
		"lockFor":     req.LockFor,
		"minLoopTime": req.MinLoopTime,
	}).Debug("Claim request params")

	ids, err := l.Get(c.Request.Context(), &loop.GetOptions{
		Limit:       req.Limit,
		LockFor:     req.LockFor,
		MinLoopTime: req.MinLoopTime,
	})
	if err != nil {
		handleLoopError(c, err)
		return
	}
	if ids == nil {
		ids = []interface{}{}
	}
	c.JSON(http.StatusOK, gin.H{"ids": ids})
}

func unlockIds(c *gin.Context) {
	countOp("unlock")
	l, ok := requestLoop(c)
	if !ok {
		return
	}
	req, ok := bindIds(c)
	if !ok {
		return
	}

	n, err := l.Unlock(c.Request.Context(), req.IDs, &loop.UnlockOptions{
		NoAutoAdd: req.NoAutoAdd,
	})
	if err != nil {
		handleLoopError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func didIds(c *gin.Context) {
	countOp("did")
	l, ok := requestLoop(c)
	if !ok {
		return
	}
	req, ok := bindIds(c)
	if !ok {
		return
	}

	n, err := l.Did(c.Request.Context(), req.IDs, &loop.DidOptions{
		CompletedAt: epochTime(req.CompletedAt),
		NoAutoAdd:   req.NoAutoAdd,
	})
	if err != nil {
		handleLoopError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func bumpIds(c *gin.Context) {
	countOp("bump")
	l, ok := requestLoop(c)
	if !ok {
		return
	}
	req, ok := bindIds(c)
	if !ok {
		return
	}

	n, err := l.Bump(c.Request.Context(), req.IDs, &loop.BumpOptions{
		LockFor:   req.LockFor,
		At:        epochTime(req.At),
		NoAutoAdd: req.NoAutoAdd,
	})
	if err != nil {
		handleLoopError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func checkIds(c *gin.Context) {
	countOp("check")
	l, ok := requestLoop(c)
	if !ok {
		return
	}

	var ids []interface{}
	if raw := c.Query("ids"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			ids = append(ids, part)
		}
	}

	entries, err := l.Check(c.Request.Context(), ids)
	if err != nil {
		handleLoopError(c, err)
		return
	}

	// keyed by id for easy lookup on the client side
	result := make(map[string]loop.Entry, len(entries))
	for _, e := range entries {
		result[fmt.Sprint(e.ID)] = e
	}
	c.JSON(http.StatusOK, gin.H{"entries": result})
}

func loopStats(c *gin.Context) {
	countOp("stats")
	l, ok := requestLoop(c)
	if !ok {
		return
	}

	var thresholds []int64
	if raw := c.Query("thresholds"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			t, err := cast.ToInt64E(part)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": fmt.Sprintf("bad threshold %q", part),
				})
				return
			}
			thresholds = append(thresholds, t)
		}
	}

	stats, err := l.Stats(c.Request.Context(), &loop.StatsOptions{
		DelayThresholds: thresholds,
	})
	if err != nil {
		handleLoopError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
