package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/SaintWyss/rag-corp-sub003/pkg/models"
	"github.com/SaintWyss/rag-corp-sub003/pkg/observability"
)

const actorContextKey = "actor"

// actorClaims is the JWT payload the middleware understands
type actorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ActorMiddleware resolves the caller into a models.Actor. Requests without
// credentials proceed as the anonymous actor; the access policy decides what
// anonymous may see. A present-but-invalid token is rejected outright.
func ActorMiddleware(secret string, logger observability.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Set(actorContextKey, models.Actor{})
			c.Next()
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header must be a bearer token"})
			return
		}

		claims := &actorClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			logger.Debug("Rejected invalid token", map[string]interface{}{"error": errString(err)})
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid subject claim"})
			return
		}

		c.Set(actorContextKey, models.Actor{
			UserID:        userID,
			Role:          models.Role(strings.ToUpper(claims.Role)),
			Authenticated: true,
		})
		c.Next()
	}
}

// actorFrom returns the actor resolved by the middleware
func actorFrom(c *gin.Context) models.Actor {
	if v, ok := c.Get(actorContextKey); ok {
		if actor, ok := v.(models.Actor); ok {
			return actor
		}
	}
	return models.Actor{}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
