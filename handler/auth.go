package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	errUnauthorized   = "UNAUTHORIZED"
	replyUnauthorized = "Du måste vara inloggad som handläggare."
)

// Agent is the authenticated support agent behind a /tickets request.
type Agent struct {
	UserID   string
	TenantID string
}

const agentKey ctxKey = iota + 1

// requireAgent accepts HS256 bearer tokens carrying a tenant_id claim and
// either sub or user_id. An empty secret rejects every request.
func requireAgent(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			agent, ok := parseAgent(r.Header.Get("Authorization"), secret)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Reply: replyUnauthorized, Error: errUnauthorized})
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), agentKey, agent)))
		})
	}
}

func parseAgent(header, secret string) (Agent, bool) {
	if secret == "" {
		return Agent{}, false
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return Agent{}, false
	}
	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Agent{}, false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Agent{}, false
	}

	tenantID, _ := claims["tenant_id"].(string)
	userID := claimString(claims["sub"])
	if userID == "" {
		userID = claimString(claims["user_id"])
	}
	if strings.TrimSpace(tenantID) == "" || userID == "" {
		return Agent{}, false
	}
	return Agent{UserID: userID, TenantID: strings.TrimSpace(tenantID)}, true
}

// claimString accepts string and numeric ids; JSON numbers decode as float64.
func claimString(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatInt(int64(id), 10)
	default:
		return ""
	}
}

func agentFrom(ctx context.Context) Agent {
	a, _ := ctx.Value(agentKey).(Agent)
	return a
}
