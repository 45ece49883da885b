package middleware

import (
	"errors"
	"net/http"

	"adcampaign-controlplane/pkg/errutil"
	"adcampaign-controlplane/pkg/featureflags"
	"adcampaign-controlplane/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last handler error as the errutil JSON envelope.
// Internal failures are logged and answered with a generic message.
func Error(ff featureflags.FeatureFlag) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var be errutil.BaseError
		if !errors.As(last.Err, &be) {
			be = errutil.BaseError{Code: errutil.StatusInternal, Message: "internal error", Err: last.Err}
		}

		ctx := c.Request.Context()
		switch be.Code {
		case errutil.StatusInternal, errutil.StatusUnknown:
			logger.FromContext(ctx).Error("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Error(last.Err),
			)
			be = errutil.BaseError{Code: errutil.StatusInternal, Message: "internal error"}
		case errutil.StatusForbidden:
			if reason, _ := be.Detail(errutil.FieldReason); reason == errutil.ReasonOutOfScope &&
				ff != nil && ff.Enabled(ctx, featureflags.UniformNotFound) {
				be = errutil.BaseError{Code: errutil.StatusNotFound, Message: "resource not found"}
			}
		}

		c.AbortWithStatusJSON(be.Code.HTTPStatus(), be.JSON())
	}
}

// NoRoute answers unknown paths with the same envelope.
func NoRoute(c *gin.Context) {
	be := errutil.BaseError{Code: errutil.StatusNotFound, Message: "route not found"}
	c.AbortWithStatusJSON(http.StatusNotFound, be.JSON())
}
