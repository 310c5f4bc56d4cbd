// Package daemon serves the party store and merge over HTTP.
package daemon

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	jujuerrors "github.com/juju/errors"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/lherron/partymerge/internal/cursor"
	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/store"
	"github.com/lherron/partymerge/internal/webhooks"
)

// ActorHeader names the request header carrying the acting user.
const ActorHeader = "X-Partymerge-Actor"

// NextCursorHeader carries the cursor of the next page of a listing.
const NextCursorHeader = "X-Next-Cursor"

// Options configures the server.
type Options struct {
	Token        string
	DefaultActor string
	Logger       *zap.Logger
	// Notifier is told about every committed merge. Optional.
	Notifier     *webhooks.Dispatcher
}

// Server is the HTTP boundary in front of a store.
type Server struct {
	echo      *echo.Echo
	store     *store.Store
	logger    *zap.Logger
	notifier  *webhooks.Dispatcher
	token     string
	actor     string
	startTime time.Time
}

// New builds a server with its routes registered.
func New(s *store.Store, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:      e,
		store:     s,
		logger:    logger,
		notifier:  opts.Notifier,
		token:     opts.Token,
		actor:     opts.DefaultActor,
		startTime: time.Now(),
	}

	e.HTTPErrorHandler = srv.handleError
	e.Use(srv.requestLogger)
	srv.registerRoutes()
	return srv
}

// Handler exposes the server for httptest and custom listeners.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until ctx is cancelled, then shuts down.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("daemon listening", zap.String("addr", addr))
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	v1 := s.echo.Group("/v1", s.withAuth)
	v1.GET("/health", s.handleHealth)
	v1.GET("/parties", s.handleListParties)
	v1.GET("/parties/:id", s.handleGetParty)
	v1.GET("/parties/:id/history", s.handlePartyHistory)
	v1.GET("/refs", s.handleRefs)
	v1.GET("/merges", s.handleListMerges)
	v1.POST("/merge", s.handleMerge)
}

func (s *Server) withAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.token != "" {
			token := strings.TrimPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}
		}
		return next(c)
	}
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.logger.Info("request",
			zap.String("method", c.Request().Method),
			zap.String("route", c.Path()),
			zap.Int("status", c.Response().Status),
			zap.Duration("response_time", time.Since(start)),
		)
		return nil
	}
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := err.Error()

	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			message = msg
		}
	case jujuerrors.Is(err, jujuerrors.NotValid):
		code = http.StatusBadRequest
	case jujuerrors.Is(err, jujuerrors.NotFound):
		code = http.StatusNotFound
	}

	if code >= http.StatusInternalServerError {
		s.logger.Error("api is returning an error", zap.Error(err), zap.String("route", c.Path()))
	}
	_ = c.JSON(code, ErrorResponse{Message: message})
}

func (s *Server) actorFor(c echo.Context) string {
	if actor := c.Request().Header.Get(ActorHeader); actor != "" {
		return actor
	}
	return s.actor
}

func (s *Server) handleHealth(c echo.Context) error {
	status := http.StatusOK
	body := map[string]interface{}{
		"ok":     true,
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.store.DB().PingContext(c.Request().Context()); err != nil {
		status = http.StatusServiceUnavailable
		body["ok"] = false
		body["error"] = err.Error()
	}
	return c.JSON(status, body)
}

func (s *Server) handleListParties(c echo.Context) error {
	opts := store.PartyListOptions{
		IncludeInactive: c.QueryParam("all") == "true",
		Query:           c.QueryParam("q"),
		Sort:            c.QueryParam("sort"),
	}
	if raw := c.QueryParam("cursor"); raw != "" {
		after, err := cursor.Decode(raw)
		if err != nil {
			return err
		}
		opts.After = after
	}
	if limit := c.QueryParam("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		opts.Limit = n
	}

	parties, err := s.store.Parties.List(c.Request().Context(), opts)
	if err != nil {
		return err
	}
	next, err := opts.NextCursor(parties)
	if err != nil {
		return err
	}
	if next != nil {
		encoded, err := next.Encode()
		if err != nil {
			return err
		}
		c.Response().Header().Set(NextCursorHeader, encoded)
	}
	return c.JSON(http.StatusOK, parties)
}

func partyID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "party id must be a positive integer")
	}
	return id, nil
}

// PartyDetail is a party with the records that point at it.
type PartyDetail struct {
	*domain.Party
	Addresses  []domain.Address  `json:"addresses"`
	Invoices   []domain.Invoice  `json:"invoices"`
	Categories []domain.Category `json:"categories"`
}

func (s *Server) handleGetParty(c echo.Context) error {
	id, err := partyID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	party, err := s.store.Parties.Get(ctx, id)
	if err != nil {
		return err
	}
	detail := PartyDetail{Party: party}
	if detail.Addresses, err = s.store.Addresses.ListForParty(ctx, id); err != nil {
		return err
	}
	if detail.Invoices, err = s.store.Invoices.ListForParty(ctx, id); err != nil {
		return err
	}
	if detail.Categories, err = s.store.Categories.ListForParty(ctx, id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detail)
}

func (s *Server) handlePartyHistory(c echo.Context) error {
	id, err := partyID(c)
	if err != nil {
		return err
	}
	history, err := s.store.Parties.History(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, history)
}

func (s *Server) handleRefs(c echo.Context) error {
	entity := c.QueryParam("entity")
	if entity == "" {
		entity = domain.PartyEntity
	}
	reg, err := s.store.Registry(c.Request().Context())
	if err != nil {
		return err
	}
	if _, ok := reg.EntityType(entity); !ok {
		return jujuerrors.NotFoundf("entity type %q", entity)
	}
	return c.JSON(http.StatusOK, reg.ReferenceFields(entity))
}

func (s *Server) handleListMerges(c echo.Context) error {
	var id int64
	if p := c.QueryParam("party"); p != "" {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "party must be an integer")
		}
		id = n
	}
	merges, err := s.store.Parties.Merges(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, merges)
}

func (s *Server) handleMerge(c echo.Context) error {
	var req domain.MergeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	actor := s.actorFor(c)
	report, err := s.store.Parties.Merge(c.Request().Context(), actor, req)
	if err != nil {
		return err
	}
	s.notifier.Dispatch(c.Request().Context(), report, actor)
	return c.JSON(http.StatusOK, report)
}
