package dto

import "github.com/cuongbtq/voiceover-be/internal/api/domain"

type MeResponse struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Credits int64  `json:"credits"`
	IsAdmin bool   `json:"isAdmin"`
}

func NewMeResponse(u *domain.User) MeResponse {
	return MeResponse{ID: u.ID, Email: u.Email, Credits: u.Credits, IsAdmin: u.IsAdmin}
}

type GrantCreditsRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

type BalanceResponse struct {
	UserID  string `json:"userId"`
	Balance int64  `json:"balance"`
}

type BillingRequest struct {
	CustomerRef     *string `json:"customerRef"`
	SubscriptionRef *string `json:"subscriptionRef"`
}

type ImprovePromptRequest struct {
	Prompt string  `json:"prompt" binding:"required"`
	Preset *string `json:"preset"`
}

type ImprovePromptResponse struct {
	Prompt string `json:"prompt"`
}

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	Balance      *int64 `json:"balance,omitempty"`
	RetryAfterMs *int64 `json:"retryAfterMs,omitempty"`
}
