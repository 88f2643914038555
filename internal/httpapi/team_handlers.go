package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"adminhub.org/internal/audit"
	"adminhub.org/internal/auth"
)

type createMemberRequest struct {
	Email        string   `json:"email"`
	Password     string   `json:"password"`
	Name         string   `json:"name"`
	Role         string   `json:"role"`
	CustomRoleID string   `json:"custom_role_id"`
	AllowedIPs   []string `json:"allowed_ips"`
	Status       string   `json:"status"`
}

type updateMemberRequest struct {
	Name         *string  `json:"name"`
	Email        *string  `json:"email"`
	Role         *string  `json:"role"`
	CustomRoleID *string  `json:"custom_role_id"`
	AllowedIPs   []string `json:"allowed_ips"`
}

type memberStatusRequest struct {
	Status string `json:"status"`
}

type memberResponse struct {
	ID           string        `json:"id"`
	Email        string        `json:"email"`
	Name         string        `json:"name"`
	Role         string        `json:"role"`
	CustomRoleID string        `json:"custom_role_id,omitempty"`
	CustomRole   *roleResponse `json:"custom_role,omitempty"`
	Status       string        `json:"status"`
	AllowedIPs   []string      `json:"allowed_ips"`
	LastLoginAt  *time.Time    `json:"last_login_at,omitempty"`
	LastLoginIP  string        `json:"last_login_ip,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func newMemberResponse(m *auth.Member) memberResponse {
	resp := memberResponse{
		ID:           m.ID,
		Email:        m.Email,
		Name:         m.Name,
		Role:         m.Role,
		CustomRoleID: m.CustomRoleID,
		Status:       m.Status,
		AllowedIPs:   m.AllowedIPs,
		LastLoginAt:  m.LastLoginAt,
		LastLoginIP:  m.LastLoginIP,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if resp.AllowedIPs == nil {
		resp.AllowedIPs = []string{}
	}
	if m.CustomRole != nil {
		r := newRoleResponse(m.CustomRole)
		resp.CustomRole = &r
	}
	return resp
}

func (a *API) handleListMembers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseIntParam(q.Get("limit"), "limit")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := parseIntParam(q.Get("offset"), "offset")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	members, err := a.svc.Admin.ListMembers(r.Context(), auth.MemberFilter{
		Status: q.Get("status"),
		Search: q.Get("search"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	items := make([]memberResponse, 0, len(members))
	for _, m := range members {
		items = append(items, newMemberResponse(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	var req createMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	actor, _ := auth.PrincipalFromContext(r.Context())
	m, err := a.svc.Admin.CreateMember(r.Context(), actor, auth.MemberInput{
		Email:        req.Email,
		Password:     req.Password,
		Name:         req.Name,
		Role:         req.Role,
		CustomRoleID: req.CustomRoleID,
		AllowedIPs:   req.AllowedIPs,
		Status:       req.Status,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "team.member.create", map[string]any{
		"member_id": m.ID,
		"email":     m.Email,
		"role":      m.Role,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/team/%s", m.ID))
	writeJSON(w, http.StatusCreated, newMemberResponse(m))
}

func (a *API) handleGetMember(w http.ResponseWriter, r *http.Request) {
	m, err := a.svc.Admin.GetMember(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMemberResponse(m))
}

func (a *API) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	var req updateMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	actor, _ := auth.PrincipalFromContext(r.Context())
	id := chi.URLParam(r, "id")
	m, err := a.svc.Admin.UpdateMember(r.Context(), actor, id, auth.MemberUpdate{
		Name:         req.Name,
		Email:        req.Email,
		Role:         req.Role,
		CustomRoleID: req.CustomRoleID,
		AllowedIPs:   req.AllowedIPs,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "team.member.update", map[string]any{
		"member_id": m.ID,
		"fields":    changedMemberFields(req),
	})
	writeJSON(w, http.StatusOK, newMemberResponse(m))
}

func (a *API) handleSetMemberStatus(w http.ResponseWriter, r *http.Request) {
	var req memberStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	actor, _ := auth.PrincipalFromContext(r.Context())
	m, err := a.svc.Admin.SetMemberStatus(r.Context(), actor, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "team.member.status", map[string]any{
		"member_id": m.ID,
		"status":    m.Status,
	})
	writeJSON(w, http.StatusOK, newMemberResponse(m))
}

func (a *API) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.PrincipalFromContext(r.Context())
	id := chi.URLParam(r, "id")
	if err := a.svc.Admin.DeleteMember(r.Context(), actor, id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "team.member.delete", map[string]any{
		"member_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}

func changedMemberFields(req updateMemberRequest) []string {
	var fields []string
	if req.Name != nil {
		fields = append(fields, "name")
	}
	if req.Email != nil {
		fields = append(fields, "email")
	}
	if req.Role != nil {
		fields = append(fields, "role")
	}
	if req.CustomRoleID != nil {
		fields = append(fields, "custom_role_id")
	}
	if req.AllowedIPs != nil {
		fields = append(fields, "allowed_ips")
	}
	return fields
}

func parseIntParam(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return val, nil
}
