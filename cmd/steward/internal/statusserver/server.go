// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package statusserver exposes a loopback HTTP surface for health,
// loop state, recent audit records, and Prometheus metrics.
package statusserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/steward/cmd/steward/internal/audit"
	"github.com/AleutianAI/steward/cmd/steward/internal/loop"
	"github.com/AleutianAI/steward/pkg/logging"
)

// maxRecentRecords caps one audit query.
const maxRecentRecords = 200

// RecentReader serves recent audit records.
type RecentReader interface {
	Recent(ctx context.Context, n int) ([]audit.CycleRecord, error)
}

// Server is the status HTTP server. It binds to loopback by default;
// nothing here is meant to face a network.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	logger *logging.Logger
}

// New builds the server around the loop's state and the audit store.
func New(addr string, state func() loop.State, records RecentReader, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", handleHealth())
	engine.GET("/status", handleStatus(state))
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	v1 := engine.Group("/v1")
	{
		v1.GET("/audit/recent", handleRecent(records, logger))
	}

	return &Server{
		engine: engine,
		http: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start serves until Shutdown. It returns nil on clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("status server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleStatus(state func() loop.State) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := state()
		c.JSON(http.StatusOK, gin.H{
			"backend":              st.Backend,
			"circuit_state":        st.CircuitState,
			"consecutive_failures": st.ConsecutiveFailures,
			"last_success":         st.LastSuccess,
			"last_cycle":           st.LastCycle,
			"cycles_run":           st.CyclesRun,
			"check_interval":       st.Interval.String(),
		})
	}
}

func handleRecent(records RecentReader, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		n := 20
		if raw := c.Query("n"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 || parsed > maxRecentRecords {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "n must be an integer between 1 and " + strconv.Itoa(maxRecentRecords),
				})
				return
			}
			n = parsed
		}

		recs, err := records.Recent(c.Request.Context(), n)
		if err != nil {
			logger.Error("audit query failed", "error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "audit store unavailable"})
			return
		}
		if recs == nil {
			recs = []audit.CycleRecord{}
		}
		c.JSON(http.StatusOK, gin.H{"records": recs, "count": len(recs)})
	}
}
