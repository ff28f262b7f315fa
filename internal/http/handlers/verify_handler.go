package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/filegate-bot/internal/utils"
)

// VerifyResponse confirms a verification callback.
type VerifyResponse struct {
	UserID    int64     `json:"user_id" example:"42"`
	Admitted  bool      `json:"admitted" example:"true"`
	ExpiresAt time.Time `json:"expires_at" example:"2026-10-18T12:00:00Z"`
}

// VerifyCallback godoc
// @ID          verifyCallback
// @Summary     Complete a verification
// @Description Called by the verification page once the user finished it. Admits the user for the admission window and credits the referrer on the user's first admission.
// @Tags        Verification
// @Produce     json
//
// @Param       uid    query  int     true   "Telegram user id"            example(42)
// @Param       ref    query  string  false  "Referral token from /start"  example(7)
// @Param       token  query  string  true   "Callback secret"
//
// @Success     200  {object}  handlers.VerifyResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid user id"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid token"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /verify/callback [get]
func (h *Handlers) VerifyCallback(c *gin.Context) {
	if !h.validToken(c.Query("token")) {
		fail(c, http.StatusUnauthorized, ErrCodeInvalidToken, "invalid verification token")
		return
	}
	uid, err := utils.ParseUserID(c.Query("uid"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidUserID, "uid must be a positive integer")
		return
	}

	expiry, err := h.ledger.Admit(c.Request.Context(), uid, c.Query("ref"))
	if err != nil {
		failService(c, err, ErrCodeAdmissionFailed)
		return
	}
	ok(c, http.StatusOK, VerifyResponse{UserID: uid, Admitted: true, ExpiresAt: expiry})
}
