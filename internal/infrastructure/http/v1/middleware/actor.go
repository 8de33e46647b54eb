package middleware

import (
	"github.com/gin-gonic/gin"

	"kardex/internal/core/apperror"
	appctx "kardex/internal/core/context"
)

const (
	HeaderCompanyID = "X-Company-ID"
	HeaderActorID   = "X-Actor-ID"
)

// Actor middleware reads the caller identity headers. The company is
// mandatory: the ledger is partitioned by it and every operation takes
// it as an explicit scope argument. The values also land in the
// context for log enrichment.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyID := c.GetHeader(HeaderCompanyID)
		if companyID == "" {
			_ = c.Error(apperror.NewMissingRequiredField("X-Company-ID header"))
			c.Abort()
			return
		}
		actorID := c.GetHeader(HeaderActorID)

		ctx := appctx.WithActor(c.Request.Context(), &appctx.ActorContext{
			ActorID:   actorID,
			CompanyID: companyID,
		})
		c.Request = c.Request.WithContext(ctx)

		c.Set("company_id", companyID)
		c.Set("actor_id", actorID)

		c.Next()
	}
}
