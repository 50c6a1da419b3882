package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/betbot/coinwatch/internal/domain"
	"github.com/betbot/coinwatch/internal/tracker"
	"github.com/betbot/coinwatch/pkg/logger"
)

const maxAlertsLimit = 500

// StateSource 提供最近一轮的状态
type StateSource interface {
	State() *tracker.State
}

// AlertQuerier 告警查询（alertlog.Journal）
type AlertQuerier interface {
	Recent(ctx context.Context, limit int) ([]domain.Alert, error)
}

// Server 只读状态 API
type Server struct {
	state   StateSource
	journal AlertQuerier
	hub     *Hub
}

// New journal、hub 可以为空，对应路由返回 404/503
func New(state StateSource, journal AlertQuerier, hub *Hub) *Server {
	return &Server{state: state, journal: journal, hub: hub}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")
	api.GET("/state", s.handleState)
	api.GET("/alerts", s.handleAlerts)

	if s.hub != nil {
		r.GET("/ws/alerts", func(c *gin.Context) { s.hub.ServeWS(c.Writer, c.Request) })
	}
	return r
}

func (s *Server) handleState(c *gin.Context) {
	st := s.state.State()
	if st == nil {
		st = &tracker.State{}
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleAlerts(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alert journal disabled"})
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, maxAlertsLimit)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	alerts, err := s.journal.Recent(ctx, limit)
	if err != nil {
		logger.Errorf("api: 查询告警失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query alerts failed"})
		return
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// StartAsync 启动 HTTP 服务（非阻塞），ctx.Done() 时关闭 hub 并优雅退出
func (s *Server) StartAsync(ctx context.Context, listenAddr string) (*http.Server, net.Addr, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, nil, err
	}
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("api server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		if s.hub != nil {
			s.hub.Close()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Infof("状态 API 已启动: http://%s", ln.Addr())
	return srv, ln.Addr(), nil
}
