package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/careflow-api/internal/model"
	apperrors "github.com/jwalitptl/careflow-api/pkg/errors"
	"github.com/jwalitptl/careflow-api/pkg/httputil"
)

const (
	HeaderServiceKey = "X-Service-Key"
	ContextPrincipal = "principal"
)

// TokenValidator resolves a bearer token to its caller.
type TokenValidator interface {
	ValidateToken(token string) (*model.Principal, error)
}

type AuthMiddleware struct {
	tokens     TokenValidator
	serviceKey string
}

// NewAuthMiddleware builds the middleware. An empty serviceKey disables
// service key authentication.
func NewAuthMiddleware(tokens TokenValidator, serviceKey string) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:     tokens,
		serviceKey: serviceKey,
	}
}

func (m *AuthMiddleware) validServiceKey(key string) bool {
	return m.serviceKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(m.serviceKey)) == 1
}

// bearer extracts the token from the Authorization header. EventSource
// clients cannot set headers, so the live routes also accept ?access_token=.
func bearer(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := c.Query("access_token"); token != "" {
		return token, true
	}
	return "", false
}

// Authenticate verifies the JWT or service key and stores the caller in the
// context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader(HeaderServiceKey); key != "" {
			if !m.validServiceKey(key) {
				httputil.RespondWithError(c, apperrors.Unauthorized(nil))
				return
			}
			c.Set(ContextPrincipal, &model.Principal{Role: model.RoleService, Subject: "service", Name: "Service"})
			c.Next()
			return
		}

		token, ok := bearer(c)
		if !ok {
			httputil.RespondWithError(c, apperrors.Unauthorized(nil))
			return
		}
		principal, err := m.tokens.ValidateToken(token)
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}
		c.Set(ContextPrincipal, principal)
		c.Next()
	}
}

// RequireRole admits callers holding one of roles.
func (m *AuthMiddleware) RequireRole(roles ...model.Role) gin.HandlerFunc {
	allowed := make(map[model.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		p := PrincipalFrom(c)
		if p == nil {
			httputil.RespondWithError(c, apperrors.Unauthorized(nil))
			return
		}
		if _, ok := allowed[p.Role]; !ok {
			httputil.RespondWithError(c, apperrors.Forbidden("permission denied"))
			return
		}
		c.Next()
	}
}

// PrincipalFrom returns the authenticated caller, or nil.
func PrincipalFrom(c *gin.Context) *model.Principal {
	v, ok := c.Get(ContextPrincipal)
	if !ok {
		return nil
	}
	p, _ := v.(*model.Principal)
	return p
}
