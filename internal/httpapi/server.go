// Package httpapi exposes the operational HTTP surface: module listing,
// settings CRUD, job status/manual-run, bus history, and the SSE bridges
// for live envelopes and logs (spec.md §4.10).
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/jhacksman/feedeater/internal/bus"
	"github.com/jhacksman/feedeater/internal/module"
	"github.com/jhacksman/feedeater/internal/scheduler"
	"github.com/jhacksman/feedeater/internal/settings"
	"github.com/jhacksman/feedeater/internal/store"
)

// Server hosts the operational HTTP surface.
type Server struct {
	Echo *echo.Echo

	Host      *module.Host
	Settings  *settings.Registry
	Scheduler *scheduler.Scheduler
	Store     *store.Store
	Bridge    *bus.LiveBridge
	Log       *zap.Logger
}

// New builds a configured Server, grounded on the teacher's echo
// middleware stack: otelecho tracing, a zap request logger, and panic
// recovery.
func New(host *module.Host, settingsRegistry *settings.Registry, sched *scheduler.Scheduler, st *store.Store, bridge *bus.LiveBridge, log *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(otelecho.Middleware("feedeater"))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("HTTP request", zap.String("uri", v.URI), zap.Int("status", v.Status))
			return nil
		},
	}))
	e.Use(middleware.Recover())

	s := &Server{Echo: e, Host: host, Settings: settingsRegistry, Scheduler: sched, Store: st, Bridge: bridge, Log: log}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.Echo.Group("/api")
	api.GET("/modules", s.listModules)
	api.GET("/settings/:module", s.getAllSettings)
	api.GET("/settings/:module/:key", s.getOneSetting)
	api.PUT("/settings/:module/:key", s.putSetting)
	api.GET("/jobs/status", s.jobsStatus)
	api.POST("/jobs/run", s.runJob)
	api.GET("/bus/history", s.busHistory)
	api.GET("/bus/stream", s.busStream)
	api.GET("/logs/stream", s.logStream)
}

func (s *Server) listModules(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Host.All())
}

func (s *Server) getAllSettings(c echo.Context) error {
	mod := c.Param("module")
	all, err := s.Settings.GetAll(c.Request().Context(), mod)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
	return c.JSON(http.StatusOK, settings.Redact(all))
}

func (s *Server) getOneSetting(c echo.Context) error {
	mod, key := c.Param("module"), c.Param("key")
	value, isSecret, found, err := s.Settings.GetOne(c.Request().Context(), mod, key)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
	if !found {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "setting not found"})
	}
	if isSecret {
		value = ""
	}
	return c.JSON(http.StatusOK, map[string]string{"module": mod, "key": key, "value": value})
}

type putSettingRequest struct {
	Value    string `json:"value"`
	IsSecret bool   `json:"isSecret"`
}

func (s *Server) putSetting(c echo.Context) error {
	mod, key := c.Param("module"), c.Param("key")
	var req putSettingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	if err := s.Settings.Put(c.Request().Context(), mod, key, req.Value, req.IsSecret); err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
	return c.NoContent(http.StatusOK)
}

type jobStatusEntry struct {
	Module    string `json:"module"`
	Job       string `json:"job"`
	Status    string `json:"status"`
	LastRunAt string `json:"lastRunAt,omitempty"`
	LastError string `json:"lastError,omitempty"`
}

func (s *Server) jobsStatus(c echo.Context) error {
	var out []jobStatusEntry
	for _, m := range s.Host.All() {
		for _, j := range m.Jobs {
			status, lastRunAt, lastErr, ok := s.Scheduler.StatusOf(m.Name, j.Name)
			if !ok {
				continue
			}
			entry := jobStatusEntry{Module: m.Name, Job: j.Name, Status: string(status), LastError: lastErr}
			if !lastRunAt.IsZero() {
				entry.LastRunAt = lastRunAt.Format(time.RFC3339)
			}
			out = append(out, entry)
		}
	}
	return c.JSON(http.StatusOK, out)
}

type runJobRequest struct {
	Module string `json:"module"`
	Job    string `json:"job"`
}

func (s *Server) runJob(c echo.Context) error {
	var req runJobRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	jobID, err := s.Scheduler.RunNow(req.Module, req.Job)
	if err != nil {
		return c.JSON(http.StatusNotFound, errBody(err))
	}
	return c.JSON(http.StatusOK, map[string]string{"jobId": jobID})
}

func (s *Server) busHistory(c echo.Context) error {
	sinceMinutes, _ := strconv.Atoi(c.QueryParam("sinceMinutes"))
	if sinceMinutes <= 0 {
		sinceMinutes = 60
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	rows, err := bus.History(c.Request().Context(), s.Store, sinceMinutes, limit, c.QueryParam("module"), c.QueryParam("stream"), c.QueryParam("q"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
	return c.JSON(http.StatusOK, rows)
}

func errBody(err error) map[string]string { return map[string]string{"error": err.Error()} }
