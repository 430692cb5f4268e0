package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/susu3304/tablesplit/internal/split"
)

type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type ctxKey string

const claimsKey ctxKey = "claims"

var (
	errTokenExchange = errors.New("token exchange failed")
	errDiscordUser   = errors.New("failed to get user")
	errSignToken     = errors.New("failed to create token")
)

// Auth handlers
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.config.StaffLoginEnabled() {
		writeError(w, http.StatusServiceUnavailable, "login_disabled", "staff login is not configured", "")
		return
	}
	state := generateRandomString(32)
	writeJSON(w, http.StatusOK, map[string]string{
		"auth_url": a.oauthConfig.AuthCodeURL(state),
		"state":    state,
	})
}

func (a *API) authenticateUser(ctx context.Context, code string) (string, string, string, error) {
	// Exchange code for token
	token, err := a.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: %v", errTokenExchange, err)
	}

	user, err := a.getDiscordUser(ctx, token.AccessToken)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: %v", errDiscordUser, err)
	}

	tokenString, err := a.issueToken(user.ID, getUsername(user), time.Now())
	if err != nil {
		return "", "", "", fmt.Errorf("%w: %v", errSignToken, err)
	}
	return tokenString, user.ID, getUsername(user), nil
}

// issueToken signs a staff JWT valid for one shift.
func (a *API) issueToken(userID, username string, now time.Time) (string, error) {
	claims := &Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(12 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
}

func (a *API) handleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing code", "")
		return
	}

	tokenString, userID, username, err := a.authenticateUser(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusBadGateway, "login_failed", err.Error(), "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":    tokenString,
		"user_id":  userID,
		"username": username,
	})
}

// handleAuthCallback is the browser variant of the callback: it redirects to
// the staff page with the token in the URL fragment.
func (a *API) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing code", "")
		return
	}

	base := strings.TrimRight(a.config.WebUIBaseURL, "/")
	tokenString, _, _, err := a.authenticateUser(r.Context(), code)
	if err != nil {
		errorType := "authentication_failed"
		switch {
		case errors.Is(err, errTokenExchange):
			errorType = "token_exchange_failed"
		case errors.Is(err, errDiscordUser):
			errorType = "failed_to_get_user"
		case errors.Is(err, errSignToken):
			errorType = "failed_to_create_token"
		}
		http.Redirect(w, r, base+"/login?error="+url.QueryEscape(errorType), http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, base+"/login?success=true#token="+tokenString, http.StatusSeeOther)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "logged out",
	})
}

// Middleware
func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing authorization header", "")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid authorization header", "")
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return a.jwtSecret, nil
		})

		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token", "")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFrom(r *http.Request) *Claims {
	claims, _ := r.Context().Value(claimsKey).(*Claims)
	return claims
}

// requireStaff checks that the caller works at the restaurant and returns
// their role.
func (a *API) requireStaff(r *http.Request, restaurantID int64) (string, error) {
	claims := claimsFrom(r)
	if claims == nil {
		return "", split.ErrNotStaff
	}
	return a.dir.StaffRole(r.Context(), restaurantID, claims.UserID)
}
