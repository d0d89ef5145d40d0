package webhook

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/cory-johannsen/ascend/internal/game/engine"
)

// playRequest accepts the plain shape and the chat-platform skill shape.
type playRequest struct {
	UserID      string        `json:"userId"`
	Action      engine.Action `json:"action"`
	UserRequest *struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		Utterance string `json:"utterance"`
	} `json:"userRequest"`
}

type playResponse struct {
	UserID string        `json:"userId"`
	Action engine.Action `json:"action"`
	Result any           `json:"result"`
}

type rejectionBody struct {
	Error    string        `json:"error"`
	Reason   engine.Reason `json:"reason"`
	Required *int64        `json:"required,omitempty"`
	Balance  *int64        `json:"balance,omitempty"`
}

// utterances maps chat button texts onto actions.
var utterances = map[string]engine.Action{
	"시작":    engine.ActionStatus,
	"상태":    engine.ActionStatus,
	"강화":    engine.ActionUpgrade,
	"판매":    engine.ActionSell,
	"칭호 변경": engine.ActionRerollFlavor,
	"직업 변경": engine.ActionRerollRole,
	"확률":    engine.ActionRates,
}

// pathAliases maps legacy per-action routes onto actions.
var pathAliases = map[string]engine.Action{
	"start": engine.ActionStatus,
}

func (r playRequest) userID() string {
	if r.UserID != "" {
		return r.UserID
	}
	if r.UserRequest != nil {
		return r.UserRequest.User.ID
	}
	return ""
}

// action resolves the explicit field first, then the route, then the utterance.
func (r playRequest) action(param string) engine.Action {
	if r.Action != "" {
		return r.Action
	}
	if param != "" {
		if a, ok := pathAliases[param]; ok {
			return a
		}
		return engine.Action(param)
	}
	if r.UserRequest != nil {
		return utterances[strings.TrimSpace(r.UserRequest.Utterance)]
	}
	return ""
}

func (s *Server) play(c *fiber.Ctx) error {
	var req playRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}
	userID := strings.TrimSpace(req.userID())
	if userID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "userId is required")
	}
	action := req.action(c.Params("action"))
	if action == "" {
		return fiber.NewError(fiber.StatusBadRequest, "action is required")
	}

	out, err := s.Game.Dispatch(c.UserContext(), userID, action)
	if err != nil {
		return s.reject(c, err)
	}
	return c.JSON(playResponse{UserID: userID, Action: action, Result: out})
}

// reject writes the wire form of an engine rejection, or hands anything else
// to the error handler.
func (s *Server) reject(c *fiber.Ctx, err error) error {
	if errors.Is(err, engine.ErrUnknownAction) {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	var rej *engine.RejectionError
	if !errors.As(err, &rej) {
		return err
	}
	body := rejectionBody{Error: rej.Error(), Reason: rej.Reason}
	if rej.Reason == engine.ReasonInsufficientFunds {
		body.Required = &rej.Required
		body.Balance = &rej.Balance
	}
	return c.Status(rejectionStatus(rej.Reason)).JSON(body)
}

// rejectionStatus maps a rejection reason onto its HTTP status.
func rejectionStatus(reason engine.Reason) int {
	switch reason {
	case engine.ReasonOverloaded, engine.ReasonTooFast:
		return fiber.StatusTooManyRequests
	case engine.ReasonFlagged:
		return fiber.StatusForbidden
	case engine.ReasonMaxLevel, engine.ReasonNotSellable:
		return fiber.StatusConflict
	case engine.ReasonInsufficientFunds:
		return fiber.StatusPaymentRequired
	}
	return fiber.StatusBadRequest
}
