package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const walletContextKey = "wallet"

// Claims is the JWT payload: the subject is the user wallet.
type Claims struct {
	Wallet string `json:"wallet"`
	jwt.RegisteredClaims
}

// IssueToken mints an HS256 access token for a wallet.
func IssueToken(secret, wallet string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Wallet: wallet,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   wallet,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString([]byte(secret))
}

// authMiddleware validates the bearer token and stores the wallet claim in
// the request context.
func authMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_token",
				"message": "authorization bearer token required",
			})
			c.Abort()
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims,
			func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_token",
				"message": "token is invalid or expired",
			})
			c.Abort()
			return
		}

		c.Set(walletContextKey, claims.Wallet)
		c.Next()
	}
}

// authedWallet returns the wallet bound to the validated token, if any.
func authedWallet(c *gin.Context) string {
	if w, ok := c.Get(walletContextKey); ok {
		if wallet, ok := w.(string); ok {
			return wallet
		}
	}
	return ""
}
