package httpapi

import (
	"net/http"
	"time"

	"leadgrid.io/internal/audit"
	"leadgrid.io/internal/auth"
	"leadgrid.io/internal/obs"
)

type loginRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	AccountType string `json:"account_type"`
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	AccountType string `json:"account_type"`
	TenantID    string `json:"tenant_id,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// tokenEnvelope is the response body for login and refresh.
type tokenEnvelope struct {
	AccessToken      string         `json:"access_token"`
	RefreshToken     string         `json:"refresh_token"`
	AccessExpiresAt  time.Time      `json:"access_expires_at"`
	RefreshExpiresAt time.Time      `json:"refresh_expires_at"`
	Principal        auth.Principal `json:"principal"`
}

func newTokenEnvelope(pair auth.TokenPair, p auth.Principal) tokenEnvelope {
	return tokenEnvelope{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		Principal:        p,
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, principal, err := a.auth.Login(r.Context(), auth.LoginInput{
		Email:       req.Email,
		Password:    req.Password,
		AccountType: auth.AccountType(req.AccountType),
		IP:          clientIP(r),
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		obs.ObserveLogin(req.AccountType, "failure")
		_ = audit.LogEvent(r.Context(), "auth.login.failure", map[string]any{
			"account_type": req.AccountType,
		})
		handleAuthError(w, r, err)
		return
	}

	obs.ObserveLogin(string(principal.AccountType), "success")
	_ = audit.LogEvent(r.Context(), "auth.login.success", map[string]any{
		"principal_id": principal.ID,
		"account_type": string(principal.AccountType),
	})
	writeJSON(w, http.StatusOK, newTokenEnvelope(pair, principal))
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	principal, err := a.auth.Register(r.Context(), auth.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		AccountType: auth.AccountType(req.AccountType),
		TenantID:    req.TenantID,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"principal_id": principal.ID,
		"account_type": string(principal.AccountType),
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"principal": principal,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeError(w, r, http.StatusBadRequest, "refresh_token is required")
		return
	}

	pair, principal, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	obs.ObserveTokenRotation()
	_ = audit.LogEvent(r.Context(), "auth.token.refresh", map[string]any{
		"principal_id": principal.ID,
		"account_type": string(principal.AccountType),
	})
	writeJSON(w, http.StatusOK, newTokenEnvelope(pair, principal))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := a.auth.Logout(r.Context(), identity.AccountType, identity.PrincipalID); err != nil {
		handleAuthError(w, r, err)
		return
	}

	obs.ObserveSessionRevocation("logout")
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "logged_out",
	})
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	principal, err := a.auth.Profile(r.Context(), identity.AccountType, identity.PrincipalID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"principal": principal,
	})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.auth.ChangePassword(r.Context(), identity.AccountType, identity.PrincipalID, req.OldPassword, req.NewPassword); err != nil {
		handleAuthError(w, r, err)
		return
	}

	obs.ObserveSessionRevocation("password_change")
	_ = audit.LogEvent(r.Context(), "auth.password.change", nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "password_changed",
	})
}
