package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/voiceover-be/internal/api/dto"
	"github.com/cuongbtq/voiceover-be/internal/api/service"
)

// AccountHandler serves the caller's account and the internal billing hooks.
type AccountHandler struct {
	logger *slog.Logger
	ledger *service.Ledger
}

func NewAccountHandler(deps *Dependencies) *AccountHandler {
	return &AccountHandler{logger: deps.Logger, ledger: deps.Ledger}
}

// Me handles GET /me
func (h *AccountHandler) Me(c *gin.Context) {
	user, ok := requireUser(c, h.logger)
	if !ok {
		return
	}

	fresh, err := h.ledger.Account(c.Request.Context(), user.ID)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewMeResponse(fresh))
}

// GrantCredits handles POST /internal/users/:id/credits
func (h *AccountHandler) GrantCredits(c *gin.Context) {
	var req dto.GrantCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, h.logger, invalidBody(err))
		return
	}

	userID := c.Param("id")
	balance, err := h.ledger.Credit(c.Request.Context(), userID, req.Amount)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.BalanceResponse{UserID: userID, Balance: balance})
}

// LinkBilling handles PUT /internal/users/:id/billing
func (h *AccountHandler) LinkBilling(c *gin.Context) {
	var req dto.BillingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, h.logger, invalidBody(err))
		return
	}

	if err := h.ledger.LinkBilling(c.Request.Context(), c.Param("id"), req.CustomerRef, req.SubscriptionRef); err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CancelSubscription handles DELETE /internal/users/:id/subscription
func (h *AccountHandler) CancelSubscription(c *gin.Context) {
	if err := h.ledger.CancelSubscription(c.Request.Context(), c.Param("id")); err != nil {
		RespondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
