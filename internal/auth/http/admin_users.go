package http

import (
	"net/http"

	"github.com/aussiebroadwan/spendsense/internal/auth/service"
	"github.com/aussiebroadwan/spendsense/pkg/authsdk"
	"github.com/aussiebroadwan/spendsense/pkg/httpx"
)

type AdminUsersHandler struct {
	CredentialService *service.CredentialService
}

// ServeHTTP handles the list users endpoint
//
//	@Summary		List all users
//	@Description	Returns every account with its lockout state. Salts and hashes are never included. Requires the Admin role.
//	@Tags			Admin
//	@Produce		json
//	@Success		200	{object}	authsdk.ListUsersResponse	"users, count"
//	@Failure		401	{object}	authsdk.ErrorResponse		"not_authenticated"
//	@Failure		403	{object}	authsdk.ErrorResponse		"forbidden or password_expired"
//	@Failure		500	{object}	authsdk.ErrorResponse		"server_error"
//	@Security		SessionCookie
//	@Router			/v1/admin/users [get].
func (h *AdminUsersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := h.CredentialService.ListAll(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response := authsdk.ListUsersResponse{
		Users: make([]authsdk.UserSummary, len(users)),
		Count: len(users),
	}

	for i, u := range users {
		response.Users[i] = authsdk.UserSummary{
			ID:              u.ID,
			Username:        u.Username,
			Role:            u.Role.String(),
			FailedAttempts:  u.FailedAttempts,
			LockUntil:       u.LockUntil,
			PasswordLastSet: u.PasswordLastSet,
			CreatedAt:       u.CreatedAt,
			UpdatedAt:       u.UpdatedAt,
		}
	}

	httpx.WriteJSON(w, http.StatusOK, response)
}
