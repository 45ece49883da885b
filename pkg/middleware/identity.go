package middleware

import (
	"context"
	"strings"
	"time"

	"adcampaign-controlplane/pkg/config"
	"adcampaign-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// Claims is the verified caller as asserted by the bearer token. The role is
// kept as a string here; the access package decides whether it is known.
type Claims struct {
	Subject   string
	Role      string
	CompanyID string
}

type customClaims struct {
	Role      string `json:"role"`
	CompanyID string `json:"company_id,omitempty"`
}

type claimsKey struct{}

func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(Claims)
	return c, ok
}

// Verifier checks HS256 bearer tokens issued by the identity provider.
type Verifier struct {
	key    []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

func NewVerifier(cfg *config.Config) *Verifier {
	return &Verifier{
		key:    []byte(cfg.Auth.JWTSecret),
		issuer: cfg.Auth.Issuer,
		leeway: cfg.Auth.Leeway,
		now:    time.Now,
	}
}

func (v *Verifier) Verify(raw string) (Claims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return Claims{}, errutil.Unauthorized("malformed token", err)
	}

	var std jwt.Claims
	var custom customClaims
	if err := tok.Claims(v.key, &std, &custom); err != nil {
		return Claims{}, errutil.Unauthorized("invalid token signature", err)
	}

	if err := std.ValidateWithLeeway(jwt.Expected{Issuer: v.issuer, Time: v.now()}, v.leeway); err != nil {
		return Claims{}, errutil.Unauthorized("token rejected", err)
	}

	if std.Subject == "" || custom.Role == "" {
		return Claims{}, errutil.Unauthorized("token without subject or role", nil)
	}

	return Claims{Subject: std.Subject, Role: custom.Role, CompanyID: custom.CompanyID}, nil
}

// Identity verifies the Authorization header and stores the claims on the
// request context. Failures abort through the Error middleware.
func Identity(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			_ = c.Error(errutil.Unauthorized("missing bearer token", nil))
			c.Abort()
			return
		}

		claims, err := v.Verify(raw)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}
