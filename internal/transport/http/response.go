package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"guardian-shell/internal/domain/auth"
	platformerrors "guardian-shell/internal/platform/errors"
)

// APIResponse is the envelope every console endpoint answers with.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Kind    string      `json:"kind,omitempty"`
}

func RespondSuccess(c *gin.Context, httpStatus int, data interface{}, message string) {
	if message == "" {
		message = "ok"
	}

	resp := APIResponse{
		Success: true,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	}

	c.JSON(httpStatus, resp)
}

func RespondError(c *gin.Context, httpStatus int, message string, data interface{}) {
	resp := APIResponse{
		Success: false,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	}

	c.JSON(httpStatus, resp)
}

// RespondErr answers with the status matching err's kind.
func RespondErr(c *gin.Context, err error) {
	status, kind := statusFor(err)
	c.JSON(status, APIResponse{
		Success: false,
		Message: err.Error(),
		Code:    status,
		Kind:    kind,
	})
}

func statusFor(err error) (int, string) {
	var perr *auth.ProviderError
	if errors.As(err, &perr) {
		return http.StatusBadRequest, string(platformerrors.KindProvider)
	}

	kind := platformerrors.KindOf(err)
	switch kind {
	case platformerrors.KindAuth, platformerrors.KindRefreshExhausted:
		return http.StatusUnauthorized, string(kind)
	case platformerrors.KindNavigationDenied:
		return http.StatusForbidden, string(kind)
	case platformerrors.KindMessageParse, platformerrors.KindProvider:
		return http.StatusBadRequest, string(kind)
	case platformerrors.KindTimeout:
		return http.StatusGatewayTimeout, string(kind)
	case platformerrors.KindNetwork:
		return http.StatusBadGateway, string(kind)
	case platformerrors.KindHTTP:
		if s := platformerrors.StatusOf(err); s >= 400 {
			return s, string(kind)
		}
		return http.StatusBadGateway, string(kind)
	case platformerrors.KindTransport:
		return http.StatusServiceUnavailable, string(kind)
	default:
		return http.StatusInternalServerError, string(kind)
	}
}
