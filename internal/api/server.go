// Package api serves the read-only query surface over the scoring engine.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	appconfig "arbiter/config"
	"arbiter/internal/metrics"
	"arbiter/logger"
	"arbiter/models"
	"arbiter/processor"
)

// Querier is the part of the scoring engine the server reads from.
type Querier interface {
	ComputeScores() []models.ExchangeScore
	ScoresForPair(pair string) ([]models.ExchangeScore, error)
}

// Server hosts the Gin router for health, scores and Prometheus metrics.
type Server struct {
	cfg        appconfig.APIConfig
	metrics    appconfig.MetricsConfig
	querier    Querier
	log        *logger.Log
	httpServer *http.Server
}

func NewServer(cfg appconfig.APIConfig, metricsCfg appconfig.MetricsConfig, querier Querier, log *logger.Log) *Server {
	if log == nil {
		log = logger.GetLogger()
	}
	if metricsCfg.Path == "" {
		metricsCfg.Path = "/metrics"
	}
	return &Server{
		cfg:     cfg,
		metrics: metricsCfg,
		querier: querier,
		log:     log,
	}
}

// Address reports the address the server listens on.
func (s *Server) Address() string {
	return s.cfg.Address()
}

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:         s.Address(),
		Handler:      router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.WithComponent("api").WithFields(logger.Fields{"address": s.Address()}).Info("query server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/health", s.handleHealth)
	router.GET("/scores", s.handleScores)
	router.GET("/scores/:pair", s.handlePairScores)

	if s.metrics.Enabled {
		router.GET(s.metrics.Path, gin.WrapH(metrics.Handler()))
	}

	return router, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *Server) handleScores(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"scores": s.querier.ComputeScores()})
}

func (s *Server) handlePairScores(c *gin.Context) {
	pair := strings.ToUpper(c.Param("pair"))
	scores, err := s.querier.ScoresForPair(pair)
	if errors.Is(err, processor.ErrPairNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "pair not found"})
		return
	}
	if err != nil {
		s.log.WithComponent("api").WithError(err).WithField("pair", pair).Error("score query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pair": pair, "scores": scores})
}
