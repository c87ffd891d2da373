package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dvcrn/authclient/internal/auth"
	"github.com/dvcrn/authclient/internal/credentials"
	"github.com/dvcrn/authclient/internal/env"
)

// adminMiddleware checks for valid admin API key from either
// 'Authorization: Bearer <key>' or 'X-API-Key: <key>' headers.
func (s *Server) adminMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminKey, ok := env.Get("ADMIN_API_KEY")
		if !ok || adminKey == "" {
			s.logger.Error().Msg("ADMIN_API_KEY environment variable not set")
			http.Error(w, "Admin API not configured", http.StatusInternalServerError)
			return
		}

		var providedToken string
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			scheme, token, found := strings.Cut(authHeader, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") {
				s.logger.Warn().
					Str("uri", r.RequestURI).
					Str("remote_addr", r.RemoteAddr).
					Msg("Invalid Authorization header format for admin endpoint")
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}
			providedToken = token
		} else {
			providedToken = r.Header.Get("X-API-Key")
		}

		if providedToken == "" || providedToken != adminKey {
			s.logger.Warn().
				Str("uri", r.RequestURI).
				Str("remote_addr", r.RemoteAddr).
				Msg("Invalid or missing admin API key")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}

// tokensHandler stores a token pair on POST and clears it on DELETE.
func (s *Server) tokensHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var pair credentials.TokenPair
		if err := json.NewDecoder(r.Body).Decode(&pair); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if pair.AccessToken == "" || pair.RefreshToken == "" {
			http.Error(w, "Missing required fields: accessToken, refreshToken", http.StatusBadRequest)
			return
		}
		if err := credentials.StoreTokens(r.Context(), s.store, pair); err != nil {
			s.logger.Error().Err(err).Msg("Failed to store tokens")
			http.Error(w, "Failed to store tokens", http.StatusInternalServerError)
			return
		}
		s.logger.Info().Msg("Tokens updated")
	case http.MethodDelete:
		if err := s.store.ClearTokens(r.Context()); err != nil {
			s.logger.Error().Err(err).Msg("Failed to clear tokens")
			http.Error(w, "Failed to clear tokens", http.StatusInternalServerError)
			return
		}
		s.logger.Info().Msg("Tokens cleared")
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "success"})
}

// tokensStatusHandler handles GET /admin/tokens/status
func (s *Server) tokensStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	access, err := s.store.GetAccessToken(ctx)
	if err != nil {
		http.Error(w, "Failed to read tokens", http.StatusInternalServerError)
		return
	}
	refresh, err := s.store.GetRefreshToken(ctx)
	if err != nil {
		http.Error(w, "Failed to read tokens", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"hasAccessToken":  access != "",
		"hasRefreshToken": refresh != "",
	}
	if exp, ok := auth.TokenExpiry(access); ok {
		minutesUntilExpiry := int64(time.Until(exp) / time.Minute)
		response["expiresAt"] = exp.Unix()
		response["minutesUntilExpiry"] = minutesUntilExpiry
		response["isExpired"] = minutesUntilExpiry <= 0
		response["needsRefreshSoon"] = auth.TokenExpired(access, time.Now())
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}
