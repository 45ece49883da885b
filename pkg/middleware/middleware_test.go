package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"adcampaign-controlplane/pkg/config"
	"adcampaign-controlplane/pkg/errutil"
	"adcampaign-controlplane/pkg/featureflags"

	"github.com/gin-gonic/gin"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

func sign(t *testing.T, std jwt.Claims, custom customClaims) string {
	t.Helper()
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: []byte(testSecret)}, (&jose.SignerOptions{}).WithType("JWT"))
	require.NoError(t, err)

	raw, err := jwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	require.NoError(t, err)
	return raw
}

func newVerifier() *Verifier {
	cfg := &config.Config{}
	cfg.Auth.JWTSecret = testSecret
	cfg.Auth.Issuer = "idp"
	cfg.Auth.Leeway = time.Second
	return NewVerifier(cfg)
}

func TestVerifier(t *testing.T) {
	v := newVerifier()
	now := time.Now()

	raw := sign(t, jwt.Claims{Subject: "7", Issuer: "idp", Expiry: jwt.NewNumericDate(now.Add(time.Hour))},
		customClaims{Role: "client", CompanyID: "3"})
	claims, err := v.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, Claims{Subject: "7", Role: "client", CompanyID: "3"}, claims)

	expired := sign(t, jwt.Claims{Subject: "7", Issuer: "idp", Expiry: jwt.NewNumericDate(now.Add(-time.Hour))},
		customClaims{Role: "client"})
	_, err = v.Verify(expired)
	require.True(t, errutil.Is(err, errutil.StatusUnauthorized))

	otherIssuer := sign(t, jwt.Claims{Subject: "7", Issuer: "someone-else"}, customClaims{Role: "staff"})
	_, err = v.Verify(otherIssuer)
	require.True(t, errutil.Is(err, errutil.StatusUnauthorized))

	noRole := sign(t, jwt.Claims{Subject: "7", Issuer: "idp"}, customClaims{})
	_, err = v.Verify(noRole)
	require.True(t, errutil.Is(err, errutil.StatusUnauthorized))

	_, err = v.Verify("not.a.token")
	require.True(t, errutil.Is(err, errutil.StatusUnauthorized))
}

func newRouter(ff featureflags.FeatureFlag, handler gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(Error(ff), Identity(newVerifier()))
	r.GET("/probe", handler)
	return r
}

func decodeCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestIdentityMiddleware(t *testing.T) {
	var seen Claims
	r := newRouter(nil, func(c *gin.Context) {
		seen, _ = ClaimsFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, string(errutil.StatusUnauthorized), decodeCode(t, w))

	raw := sign(t, jwt.Claims{Subject: "9", Issuer: "idp"}, customClaims{Role: "staff"})
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "9", seen.Subject)
	require.Equal(t, "staff", seen.Role)
}

func TestErrorMiddleware(t *testing.T) {
	outOfScope := errutil.Forbidden("campaign belongs to another company", nil, errutil.WithReason(errutil.ReasonOutOfScope))
	raw := sign(t, jwt.Claims{Subject: "9", Issuer: "idp"}, customClaims{Role: "client"})

	do := func(ff featureflags.FeatureFlag, err error) *httptest.ResponseRecorder {
		r := newRouter(ff, func(c *gin.Context) { _ = c.Error(err) })
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		req.Header.Set("Authorization", "Bearer "+raw)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do(featureflags.Static(), outOfScope)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = do(featureflags.Static(featureflags.UniformNotFound), outOfScope)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, string(errutil.StatusNotFound), decodeCode(t, w))

	notPermitted := errutil.Forbidden("read only", nil, errutil.WithReason(errutil.ReasonNotPermitted))
	w = do(featureflags.Static(featureflags.UniformNotFound), notPermitted)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = do(nil, errutil.InvalidTransition("completed is terminal", nil))
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, string(errutil.StatusInvalidTransition), decodeCode(t, w))

	w = do(nil, errors.New("connection reset"))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotContains(t, w.Body.String(), "connection reset")
}

func TestClaimsContext(t *testing.T) {
	_, ok := ClaimsFromContext(context.Background())
	require.False(t, ok)

	ctx := WithClaims(context.Background(), Claims{Subject: "1", Role: "staff"})
	c, ok := ClaimsFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "1", c.Subject)
}
