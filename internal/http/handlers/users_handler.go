package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/filegate-bot/internal/utils"
)

// AdmissionResponse describes a user's admission state. ExpiresAt is null
// for users that were never admitted.
type AdmissionResponse struct {
	UserID    int64      `json:"user_id" example:"42"`
	Admitted  bool       `json:"admitted" example:"true"`
	Verified  bool       `json:"verified" example:"true"`
	ExpiresAt *time.Time `json:"expires_at" example:"2026-10-18T12:00:00Z"`
}

// BalanceResponse carries a user's referral balance.
type BalanceResponse struct {
	UserID  int64   `json:"user_id" example:"7"`
	Balance float64 `json:"balance" example:"0.05"`
}

// pathUserID parses the :id segment or writes a 400.
func pathUserID(c *gin.Context) (int64, bool) {
	uid, err := utils.ParseUserID(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidUserID, "user id must be a positive integer")
		return 0, false
	}
	return uid, true
}

// GetAdmission godoc
// @ID          getAdmission
// @Summary     Get admission state
// @Description Reports whether the user currently holds an unexpired admission. Unknown users are reported as not admitted.
// @Tags        Users
// @Produce     json
// @Security    ApiKeyAuth
//
// @Param       id  path  int  true  "Telegram user id"  example(42)
//
// @Success     200  {object}  handlers.AdmissionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid user id"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid API key"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id}/admission [get]
func (h *Handlers) GetAdmission(c *gin.Context) {
	uid, valid := pathUserID(c)
	if !valid {
		return
	}
	ctx := c.Request.Context()

	admitted, err := h.ledger.IsAdmitted(ctx, uid)
	if err != nil {
		failService(c, err, ErrCodeLookupFailed)
		return
	}
	rec, err := h.ledger.Record(ctx, uid)
	if err != nil {
		failService(c, err, ErrCodeLookupFailed)
		return
	}

	resp := AdmissionResponse{UserID: uid, Admitted: admitted}
	if rec != nil {
		resp.Verified = rec.Verified
		resp.ExpiresAt = rec.ExpiresAt
	}
	ok(c, http.StatusOK, resp)
}

// GetBalance godoc
// @ID          getBalance
// @Summary     Get referral balance
// @Description Returns the balance accumulated from referral credits. Unknown users have a zero balance.
// @Tags        Users
// @Produce     json
// @Security    ApiKeyAuth
//
// @Param       id  path  int  true  "Telegram user id"  example(7)
//
// @Success     200  {object}  handlers.BalanceResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid user id"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid API key"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id}/balance [get]
func (h *Handlers) GetBalance(c *gin.Context) {
	uid, valid := pathUserID(c)
	if !valid {
		return
	}
	bal, err := h.ledger.Balance(c.Request.Context(), uid)
	if err != nil {
		failService(c, err, ErrCodeLookupFailed)
		return
	}
	ok(c, http.StatusOK, BalanceResponse{UserID: uid, Balance: bal})
}
