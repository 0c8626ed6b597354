package main

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/ugparu/gomux/utils/logger"
)

type progress interface {
	Frames() int64
}

// debugServer exposes pprof and the live frame count while a remux runs.
type debugServer struct {
	server    *http.Server
	closeOnce sync.Once
}

func newRouter(p progress) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	pprof.Register(router)
	router.GET("/progress", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"frames": p.Frames()})
	})
	return router
}

func newDebugServer(addr string, p progress) *debugServer {
	s := &debugServer{
		server: &http.Server{
			Addr:    addr,
			Handler: newRouter(p),
		},
	}
	logger.Debug(s, "Initialized and set up")
	return s
}

func (s *debugServer) String() string {
	return "DEBUG_SERVER " + s.server.Addr
}

func (s *debugServer) Start() {
	logger.Info(s, "Starting listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warning(s, err.Error())
	}
}

func (s *debugServer) Close() {
	s.closeOnce.Do(func() {
		logger.Debug(s, "Stopping and closing")
		s.server.Close()
	})
}
