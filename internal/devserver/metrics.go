package devserver

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type serverMetrics struct {
	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	loginFailures prometheus.Counter
	codesIssued   *prometheus.CounterVec
	verified      prometheus.Counter
}

func newServerMetrics() *serverMetrics {
	m := &serverMetrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_devserver_requests_total",
			Help: "Requests served, by route and status.",
		}, []string{"route", "status"}),
		loginFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_devserver_login_failures_total",
			Help: "Rejected login attempts.",
		}),
		codesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_devserver_codes_issued_total",
			Help: "Verification codes issued, by action.",
		}, []string{"action"}),
		verified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_devserver_verifications_total",
			Help: "Accounts verified through the bot webhook.",
		}),
	}
	m.registry.MustRegister(m.requests, m.loginFailures, m.codesIssued, m.verified)
	return m
}

// middleware counts every request by its route pattern.
func (m *serverMetrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			m.requests.WithLabelValues(c.Path(), strconv.Itoa(status)).Inc()
			return err
		}
	}
}

func (m *serverMetrics) handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
