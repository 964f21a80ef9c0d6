package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/njrobinson96/InvoiceNinja2/billing"
	"github.com/njrobinson96/InvoiceNinja2/model"
	"github.com/njrobinson96/InvoiceNinja2/recurring"
)

type appError struct {
	Code   string // stable internal error code for ops/support
	Status int    // HTTP status
	Err    error  // original error, never shown to the client
	Public string // safe text for the user (optional)
}

func (e *appError) Error() string { return fmt.Sprintf("%s: %v", e.Code, e.Err) }
func (e *appError) Unwrap() error { return e.Err }

// asAppError normalises any handler error. Messages of echo 4xx errors are
// passed through, everything else is masked.
func asAppError(err error) *appError {
	var ae *appError
	if errors.As(err, &ae) {
		return ae
	}
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		return ErrInternal(err)
	}
	ae = &appError{
		Code:   httpStatusToCode(he.Code),
		Status: he.Code,
		Err:    fmt.Errorf("%v", he.Message),
	}
	if he.Code < 500 {
		ae.Public = fmt.Sprint(he.Message)
	}
	return ae
}

func ErrInternal(err error) *appError {
	return &appError{Code: "INTERNAL", Status: http.StatusInternalServerError, Err: err}
}

type controller struct {
	model   *model.Store
	billing *billing.Service
	engine  *recurring.Engine
	logger  *slog.Logger
	clock   func() time.Time
}

func (ctrl *controller) now() time.Time {
	if ctrl.clock != nil {
		return ctrl.clock()
	}
	return time.Now()
}

func (ctrl *controller) currency() string {
	if ctrl.model.Config != nil && ctrl.model.Config.Currency != "" {
		return ctrl.model.Config.Currency
	}
	return "usd"
}

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Store   *model.Store
	Billing *billing.Service
	Engine  *recurring.Engine
	Logger  *slog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewLogger returns the process logger. Development logs text at debug
// level, every other mode JSON at info level.
func NewLogger(mode string) *slog.Logger {
	if mode == "development" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// NewServer builds the echo instance with all routes registered.
func NewServer(d Deps) *echo.Echo {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctrl := &controller{
		model:   d.Store,
		billing: d.Billing,
		engine:  d.Engine,
		logger:  logger,
		clock:   d.Now,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.BodyLimit("20M"))
	e.Use(middleware.RequestID()) // adds X-Request-ID
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisableStackAll:   false, // only log stack trace
		DisablePrintStack: true,
	}))
	e.Use(ctrl.accessLog)
	e.HTTPErrorHandler = ctrl.httpErrorHandler

	e.GET("/healthz", ctrl.health)
	ctrl.apiInit(e)
	return e
}

// NewController serves the API until ctx is cancelled and then shuts the
// server down gracefully.
func NewController(ctx context.Context, d Deps) error {
	e := NewServer(d)
	port := 8080
	if d.Store.Config != nil && d.Store.Config.Port != 0 {
		port = d.Store.Config.Port
	}

	errc := make(chan error, 1)
	go func() {
		errc <- e.Start(fmt.Sprintf(":%d", port))
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("cannot start application %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (ctrl *controller) health(c echo.Context) error {
	if err := ctrl.model.Ping(c.Request().Context()); err != nil {
		return &appError{Code: "UNAVAILABLE", Status: http.StatusServiceUnavailable, Err: err, Public: "database unavailable"}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (ctrl *controller) accessLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()

		req := c.Request()
		res := c.Response()
		rid := res.Header().Get(echo.HeaderXRequestID)

		reqLogger := ctrl.logger.With("request_id", rid).
			WithGroup("http").
			With("method", req.Method, "path", req.URL.Path, "remote_ip", c.RealIP())
		c.Set("logger", reqLogger)

		err := next(c)

		if shouldSkipAccessLog(c) {
			return err
		}
		latency := time.Since(start)

		level := slog.LevelInfo
		switch {
		case res.Status >= 500:
			level = slog.LevelError
		case res.Status >= 400:
			level = slog.LevelWarn
		}
		reqLogger.Log(req.Context(), level, "http_request",
			"status", res.Status,
			"latency_ms", float64(latency.Microseconds())/1000.0,
		)
		return err
	}
}

// httpErrorHandler logs everything and only sends a safe payload.
func (ctrl *controller) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	l, _ := c.Get("logger").(*slog.Logger)
	if l == nil {
		l = ctrl.logger
	}

	ae := asAppError(err)
	level := slog.LevelWarn
	if ae.Status >= 500 {
		level = slog.LevelError
	}
	l.Log(c.Request().Context(), level, "handler_error", "status", ae.Status, "code", ae.Code, "error", ae.Err.Error())

	_ = c.JSON(ae.Status, map[string]any{
		"error":      userMessage(ae),
		"error_code": ae.Code,
		"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
	})
}

type errorKind struct {
	code    string
	message string
}

var errorKinds = map[int]errorKind{
	http.StatusBadRequest:            {"INVALID_INPUT", "The input is invalid. Please check it and try again."},
	http.StatusUnauthorized:          {"UNAUTHORIZED", "Authentication is required."},
	http.StatusForbidden:             {"FORBIDDEN", "Access denied."},
	http.StatusNotFound:              {"NOT_FOUND", "The requested resource was not found."},
	http.StatusMethodNotAllowed:      {"METHOD_NOT_ALLOWED", "This HTTP method is not supported here."},
	http.StatusRequestEntityTooLarge: {"TOO_LARGE", "The request body is too large."},
}

func httpStatusToCode(status int) string {
	if k, ok := errorKinds[status]; ok {
		return k.code
	}
	if status >= 500 {
		return "INTERNAL"
	}
	return "ERROR"
}

func userMessage(ae *appError) string {
	if ae.Public != "" {
		return ae.Public
	}
	for _, k := range errorKinds {
		if k.code == ae.Code {
			return k.message
		}
	}
	return "An error occurred. Please try again later."
}

// Health checks and preflight requests stay out of the access log.
func shouldSkipAccessLog(c echo.Context) bool {
	req := c.Request()
	return req.URL.Path == "/healthz" || req.Method == http.MethodHead || req.Method == http.MethodOptions
}
