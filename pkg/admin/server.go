// Package admin exposes a small debug HTTP surface: the current merged round
// state, history statistics and pprof. Meant for operators, never end users.
package admin

import (
	"context"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/frankieli/livetable/internal/modules/round/store"
	"github.com/frankieli/livetable/internal/modules/session"
	"github.com/frankieli/livetable/pkg/logger"
)

// Server is the debug server
type Server struct {
	store   *store.Store
	session *session.Holder
	srv     *http.Server
}

// NewServer creates a debug server over the given store
func NewServer(st *store.Store, sess *session.Holder) *Server {
	return &Server{store: st, session: sess}
}

// Run starts the server on the given port and blocks until it stops
func (s *Server) Run(port string) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware())

	r.GET("/debug/state", s.handleState)
	r.GET("/debug/stats", s.handleStats)
	r.GET("/debug/pprof/*profile", s.handlePprof)

	s.srv = &http.Server{Addr: ":" + port, Handler: r}
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

func (s *Server) handleState(c *gin.Context) {
	snap := s.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"table_id":          snap.TableID,
		"round_id":          snap.RoundID,
		"round_number":      snap.RoundNumber,
		"status":            snap.Status.String(),
		"countdown":         snap.Countdown,
		"countdown_defined": snap.CountdownDefined,
		"is_live":           snap.IsLive,
		"balance":           snap.Balance,
		"pending":           snap.Pending,
		"confirmed":         snap.Confirmed,
		"last_round_bets":   snap.LastRoundBets,
		"odds":              snap.Odds,
		"session_expired":   s.session.Expired(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	stats := s.store.Stats()
	c.JSON(http.StatusOK, gin.H{
		"counts":         stats.Counts,
		"current_side":   stats.CurrentSide,
		"current_run":    stats.CurrentRun,
		"longest_side_a": stats.LongestSideA,
		"longest_side_b": stats.LongestSideB,
		"longest_draw":   stats.LongestDraw,
		"rounds_tracked": stats.RoundsTracked,
	})
}

func (s *Server) handlePprof(c *gin.Context) {
	switch c.Param("profile") {
	case "/", "":
		pprof.Index(c.Writer, c.Request)
	case "/cmdline":
		pprof.Cmdline(c.Writer, c.Request)
	case "/profile":
		pprof.Profile(c.Writer, c.Request)
	case "/symbol":
		pprof.Symbol(c.Writer, c.Request)
	case "/trace":
		pprof.Trace(c.Writer, c.Request)
	default:
		pprof.Index(c.Writer, c.Request)
	}
}
