package webhook

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/cory-johannsen/ascend/internal/game/account"
	"github.com/cory-johannsen/ascend/internal/game/guard"
	"github.com/cory-johannsen/ascend/internal/storage"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	topLimit           = 10
)

type loginRequest struct {
	Key string `json:"key"`
}

func (s *Server) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}
	token, exp, err := s.Auth.Login(c.IP(), req.Key)
	var locked *LockedOutError
	var failed *FailedLoginError
	switch {
	case errors.As(err, &locked):
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":          "too many attempts",
			"lockoutSeconds": int64(locked.Remaining.Round(time.Second) / time.Second),
		})
	case errors.As(err, &failed):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":             "invalid key",
			"remainingAttempts": failed.AttemptsLeft,
		})
	case err != nil:
		return err
	}
	s.Logger.Info("admin login", zap.String("ip", c.IP()))
	return c.JSON(fiber.Map{"token": token, "expiresAt": exp})
}

type statusResponse struct {
	Guard    guard.Snapshot `json:"guard"`
	Accounts int64          `json:"accounts"`
}

func (s *Server) adminStatus(c *fiber.Ctx) error {
	ctx := c.UserContext()
	snap, err := s.Guard.Snapshot(ctx)
	if err != nil {
		return err
	}
	n, err := s.Accounts.Count(ctx)
	if err != nil {
		return err
	}
	return c.JSON(statusResponse{Guard: snap, Accounts: n})
}

func (s *Server) adminFlagged(c *fiber.Ctx) error {
	users, err := s.Guard.Flagged(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"count": len(users), "users": users})
}

func (s *Server) adminUnflag(c *fiber.Ctx) error {
	id := c.Params("userId")
	ok, err := s.Guard.Unflag(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": ok, "userId": id})
}

func (s *Server) adminUnflagAll(c *fiber.Ctx) error {
	n, err := s.Guard.UnflagAll(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "count": n})
}

type userResponse struct {
	UserID       string             `json:"userId"`
	Balance      int64              `json:"balance"`
	Flavor       string             `json:"flavor"`
	Role         string             `json:"role"`
	Level        int                `json:"level"`
	Stats        account.Statistics `json:"stats"`
	Flavors      int                `json:"flavorsCollected"`
	Roles        int                `json:"rolesCollected"`
	Achievements int                `json:"achievements"`
	CreatedAt    time.Time          `json:"createdAt"`
	LastPlayedAt time.Time          `json:"lastPlayedAt"`
	Flagged      bool               `json:"flagged"`
}

func (s *Server) adminUser(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Params("userId")
	acct, err := s.Game.Account(ctx, id)
	if errors.Is(err, storage.ErrAccountNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "user not found")
	}
	if err != nil {
		return err
	}
	flagged, err := s.Guard.IsFlagged(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(userResponse{
		UserID:       acct.ID,
		Balance:      acct.Currency,
		Flavor:       acct.Entity.Flavor.Name,
		Role:         acct.Entity.Role.Name,
		Level:        acct.Entity.Level,
		Stats:        acct.Stats,
		Flavors:      len(acct.Collection.Flavors),
		Roles:        len(acct.Collection.Roles),
		Achievements: len(acct.Collection.Achievements),
		CreatedAt:    acct.CreatedAt,
		LastPlayedAt: acct.LastPlayedAt,
		Flagged:      flagged,
	})
}

func (s *Server) adminSearch(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultSearchLimit)
	if limit <= 0 || limit > maxSearchLimit {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and 100")
	}
	users, err := s.Accounts.Search(c.UserContext(), c.Query("q"), limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"count": len(users), "users": users})
}

type grantRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (s *Server) adminGrant(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Params("userId")
	var req grantRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}
	if req.Amount <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "amount must be positive")
	}
	if _, err := s.Game.Account(ctx, id); err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "user not found")
		}
		return err
	}
	balance, err := s.Game.GrantCurrency(ctx, id, req.Amount)
	if err != nil {
		return err
	}
	s.Logger.Info("admin granted currency",
		zap.String("user_id", id),
		zap.Int64("amount", req.Amount),
		zap.String("reason", req.Reason),
	)
	return c.JSON(fiber.Map{
		"success": true,
		"userId":  id,
		"added":   req.Amount,
		"balance": balance,
		"reason":  req.Reason,
	})
}

func (s *Server) adminStats(c *fiber.Ctx) error {
	ctx := c.UserContext()
	n, err := s.Accounts.Count(ctx)
	if err != nil {
		return err
	}
	top, err := s.Accounts.Top(ctx, topLimit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"accounts": n, "top": top})
}

func (s *Server) adminFlavor(c *fiber.Ctx) error {
	f, ok := s.Catalog.FlavorByKey(c.Params("key"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "flavor not found")
	}
	return c.JSON(f)
}

func (s *Server) adminRole(c *fiber.Ctx) error {
	r, ok := s.Catalog.RoleByKey(c.Params("key"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "role not found")
	}
	return c.JSON(r)
}
