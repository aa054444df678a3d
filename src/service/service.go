package service

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mosaicnetworks/turnstile/src/group"
	"github.com/mosaicnetworks/turnstile/src/node"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// Node is the part of node.Node exposed by the service.
type Node interface {
	GetStats(ctx context.Context) (map[string]string, error)
	GetMembers(ctx context.Context) ([]node.MemberInfo, error)
	GetLiving(ctx context.Context) ([]string, error)
	GetStanding(ctx context.Context, pubKeyHex string) (group.Standing, error)
}

// Standing is the JSON form of a group.Standing.
type Standing struct {
	PubKey string `json:"pub_key"`
	State  string `json:"state"`
	Votes  int    `json:"votes,omitempty"`
	Addr   string `json:"addr,omitempty"`
}

// Service exposes the state of a node over HTTP.
type Service struct {
	bindAddress string
	node        Node
	router      *gin.Engine
	server      *http.Server
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n Node, logger *logrus.Entry) *Service {
	gin.SetMode(gin.ReleaseMode)

	service := &Service{
		bindAddress: bindAddress,
		node:        n,
		router:      gin.New(),
		logger:      logger.WithField("ns", "service"),
	}

	service.router.Use(gin.Recovery(), service.logRequest)
	service.registerHandlers()

	service.server = &http.Server{
		Addr:    bindAddress,
		Handler: service.router,
	}

	return service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering API handlers")
	s.router.GET("/stats", s.GetStats)
	s.router.GET("/members", s.GetMembers)
	s.router.GET("/living", s.GetLiving)
	s.router.GET("/standing/:key", s.GetStanding)
}

// Handler returns the HTTP handler of the service.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Serve calls ListenAndServe. This is a blocking call which returns nil once
// Shutdown is called.
func (s *Service) Serve() error {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving API")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.WithError(err).Error("Serving API")
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Service) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Service) logRequest(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.WithFields(logrus.Fields{
		"method":   c.Request.Method,
		"path":     c.Request.URL.Path,
		"status":   c.Writer.Status(),
		"duration": time.Since(start).Nanoseconds(),
	}).Debug("HTTP request")
}

func cors(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
}

func (s *Service) respond(c *gin.Context, data interface{}, err error) {
	cors(c)
	if err != nil {
		s.logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Handling request")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, data)
}

// GetStats ...
func (s *Service) GetStats(c *gin.Context) {
	stats, err := s.node.GetStats(c.Request.Context())
	s.respond(c, stats, err)
}

// GetMembers ...
func (s *Service) GetMembers(c *gin.Context) {
	members, err := s.node.GetMembers(c.Request.Context())
	s.respond(c, members, err)
}

// GetLiving ...
func (s *Service) GetLiving(c *gin.Context) {
	living, err := s.node.GetLiving(c.Request.Context())
	s.respond(c, living, err)
}

// GetStanding returns the standing of the peer whose hex public key is in the
// path.
func (s *Service) GetStanding(c *gin.Context) {
	key := c.Param("key")

	standing, err := s.node.GetStanding(c.Request.Context(), key)
	if err != nil {
		cors(c)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res := Standing{
		PubKey: key,
		State:  standing.State.String(),
	}
	switch standing.State {
	case group.Pending:
		res.Votes = standing.Votes
	case group.Member:
		res.Addr = standing.Record.Addr.Hex()
	}

	s.respond(c, res, nil)
}
