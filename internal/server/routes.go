package server

import (
	"errors"
	"net/http"

	"github.com/volterm/axpert2mqtt/pkg/axpert"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/mnemonics", s.MnemonicsHandler)
	e.POST("/query/:mnemonic", s.QueryHandler)
	e.POST("/command/:mnemonic", s.CommandHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	if s.monitor != nil && s.monitor.Healthy() {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) MnemonicsHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, axpert.ListKnownMnemonics())
}

func (s *Server) QueryHandler(c echo.Context) error {
	mnemonic := c.Param("mnemonic")
	var opts []axpert.ExecOption
	if c.QueryParam("units") == "true" {
		opts = append(opts, axpert.WithUnits())
	}
	res, err := s.client.Query(c.Request().Context(), mnemonic, opts...)
	if err != nil {
		return queryError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) CommandHandler(c echo.Context) error {
	mnemonic := c.Param("mnemonic")
	res, err := s.client.Execute(c.Request().Context(), mnemonic)
	if err != nil {
		return queryError(c, err)
	}
	if res.Kind != axpert.KindCommand {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "mnemonic is a query, not a command"})
	}
	return c.JSON(http.StatusOK, res.Command)
}

// queryError maps codec errors onto HTTP statuses: unknown mnemonics are
// the caller's fault, everything else is the device link's.
func queryError(c echo.Context, err error) error {
	if errors.Is(err, axpert.ErrUnknownMnemonic) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
}
