package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the uniform response shape for every endpoint, success or
// failure. Data is null unless the operation produced a payload.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func Respond(ctx *gin.Context, status int, success bool, message string, data interface{}) {
	ctx.JSON(status, Envelope{
		Success: success,
		Message: message,
		Data:    data,
	})
}

func RespondOK(ctx *gin.Context, message string, data interface{}) {
	Respond(ctx, http.StatusOK, true, message, data)
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	Respond(ctx, http.StatusBadRequest, false, message, details)
}

func RespondUnauthorized(ctx *gin.Context, message string) {
	Respond(ctx, http.StatusUnauthorized, false, message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	Respond(ctx, http.StatusInternalServerError, false, message, nil)
}
