// Package webhook is the HTTP surface of the upgrade game: the chat webhook
// that dispatches player actions and the operator admin API.
package webhook

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/ascend/internal/config"
	"github.com/cory-johannsen/ascend/internal/game/account"
	"github.com/cory-johannsen/ascend/internal/game/engine"
	"github.com/cory-johannsen/ascend/internal/game/guard"
	"github.com/cory-johannsen/ascend/internal/game/modifier"
	"github.com/cory-johannsen/ascend/internal/observability"
	"github.com/cory-johannsen/ascend/internal/storage"
)

const requestIDHeader = "X-Request-ID"

// Game is the engine surface the handlers drive.
type Game interface {
	Dispatch(ctx context.Context, userID string, action engine.Action) (any, error)
	GrantCurrency(ctx context.Context, userID string, amount int64) (int64, error)
	Account(ctx context.Context, userID string) (*account.Account, error)
}

// GuardAdmin is the abuse guard surface exposed to operators.
type GuardAdmin interface {
	Snapshot(ctx context.Context) (guard.Snapshot, error)
	Flagged(ctx context.Context) ([]string, error)
	IsFlagged(ctx context.Context, userID string) (bool, error)
	Unflag(ctx context.Context, userID string) (bool, error)
	UnflagAll(ctx context.Context) (int, error)
}

// Directory is the read side of the account store used by the admin API.
type Directory interface {
	Search(ctx context.Context, prefix string, limit int) ([]storage.Summary, error)
	Count(ctx context.Context) (int64, error)
	Top(ctx context.Context, limit int) ([]storage.Summary, error)
}

// Catalog resolves modifiers by their URL-safe slug key.
type Catalog interface {
	FlavorByKey(key string) (modifier.Flavor, bool)
	RoleByKey(key string) (modifier.Role, bool)
}

// Deps are the collaborators of the HTTP server.
type Deps struct {
	Game     Game
	Guard    GuardAdmin
	Accounts Directory
	Catalog  Catalog
	Auth     *Authenticator
	Limiter  *IPLimiter
	Logger   *zap.Logger
}

// Server owns the fiber app and implements the lifecycle Service interface.
type Server struct {
	Deps
	cfg config.HTTPConfig
	app *fiber.App
}

type errorBody struct {
	Error string `json:"error"`
}

// New builds the app and registers every route.
//
// Precondition: every Deps field must be non-nil.
func New(cfg config.HTTPConfig, deps Deps) *Server {
	s := &Server{Deps: deps, cfg: cfg}
	s.app = fiber.New(fiber.Config{
		AppName:               "ascend",
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(requestID())
	s.app.Use(observability.RequestLogger(deps.Logger))

	s.app.Get("/health", s.health)

	game := s.app.Group("/game", deps.Limiter.Middleware())
	game.Post("/", s.play)
	game.Post("/:action", s.play)

	s.app.Post("/admin/login", deps.Limiter.Middleware(), s.login)
	admin := s.app.Group("/admin", deps.Auth.Middleware())
	admin.Get("/status", s.adminStatus)
	admin.Get("/flagged", s.adminFlagged)
	admin.Post("/unflag-all", s.adminUnflagAll)
	admin.Post("/unflag/:userId", s.adminUnflag)
	admin.Get("/users", s.adminSearch)
	admin.Get("/users/:userId", s.adminUser)
	admin.Post("/users/:userId/gold", s.adminGrant)
	admin.Get("/stats", s.adminStats)
	admin.Get("/catalog/flavors/:key", s.adminFlavor)
	admin.Get("/catalog/roles/:key", s.adminRole)
	return s
}

// App exposes the fiber app for in-process tests.
func (s *Server) App() *fiber.App { return s.app }

// Start listens on cfg.Addr() and blocks until Stop.
func (s *Server) Start() error {
	s.Logger.Info("http server listening", zap.String("addr", s.cfg.Addr()))
	return s.app.Listen(s.cfg.Addr())
}

// Stop drains in-flight requests, giving up when ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) health(c *fiber.Ctx) error {
	snap, err := s.Guard.Snapshot(c.UserContext())
	if err != nil {
		return err
	}
	status := "ok"
	if snap.Overloaded {
		status = "overloaded"
	}
	return c.JSON(fiber.Map{"status": status, "guard": snap})
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(errorBody{Error: fe.Message})
	}
	if errors.Is(err, storage.ErrStaleAccount) {
		s.Logger.Warn("concurrent account write", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusConflict).JSON(errorBody{Error: "account changed, retry"})
	}
	s.Logger.Error("request failed",
		zap.String("path", c.Path()),
		zap.Any(observability.RequestIDKey, c.Locals(observability.RequestIDKey)),
		zap.Error(err),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(errorBody{Error: "internal error"})
}

// requestID tags each request with the caller's X-Request-ID or a fresh uuid.
func requestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals(observability.RequestIDKey, id)
		c.Set(requestIDHeader, id)
		return c.Next()
	}
}
