// Package api exposes HTTP handlers for the study ranking service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"example.com/studyrank/internal/domain"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", health)
	mux.HandleFunc("GET /db-health", h.dbHealth)
	mux.HandleFunc("POST /users", h.createUser)
	mux.HandleFunc("GET /users", h.listUsers)
	mux.HandleFunc("POST /groups", h.createGroup)
	mux.HandleFunc("POST /groups/{groupID}/join", h.joinGroup)
	mux.HandleFunc("GET /users/{userID}/groups", h.listUserGroups)
	mux.HandleFunc("GET /groups/{groupID}/members", h.listGroupMembers)
	mux.HandleFunc("POST /groups/{groupID}/activities", h.createActivity)
	mux.HandleFunc("GET /groups/{groupID}/activities", h.listGroupActivities)
	mux.HandleFunc("GET /groups/{groupID}/activities/summary", h.groupSummary)
}

// health reports a simple OK status for liveness checks.
func health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) dbHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	user, err := h.service.CreateUser(r.Context(), domain.CreateUserInput{
		Email: req.Email,
		Name:  req.Name,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserView(*user))
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	views := make([]UserView, 0, len(users))
	for _, u := range users {
		views = append(views, toUserView(u))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	group, err := h.service.CreateGroup(r.Context(), domain.CreateGroupInput{
		Name:     req.Name,
		OwnerID:  req.OwnerID,
		GoalDays: req.GoalDays,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toGroupView(*group))
}

func (h *Handler) joinGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "groupID")
	if !ok {
		return
	}

	var req JoinGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if err := h.service.JoinGroup(r.Context(), groupID, req.UserID); err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listUserGroups(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}

	groups, err := h.service.ListUserGroups(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	views := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		views = append(views, toGroupView(g))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) listGroupMembers(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "groupID")
	if !ok {
		return
	}

	members, err := h.service.ListGroupMembers(r.Context(), groupID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	views := make([]GroupMemberView, 0, len(members))
	for _, m := range members {
		views = append(views, GroupMemberView{
			UserID:   m.UserID,
			Name:     m.Name,
			Email:    m.Email,
			JoinedAt: m.JoinedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "groupID")
	if !ok {
		return
	}

	var req CreateActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	activity, err := h.service.LogActivity(r.Context(), domain.LogActivityInput{
		GroupID:     groupID,
		UserID:      req.UserID,
		Description: req.Description,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toActivityView(*activity))
}

func (h *Handler) listGroupActivities(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "groupID")
	if !ok {
		return
	}

	activities, err := h.service.ListGroupActivities(r.Context(), groupID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toActivityWithUserViews(activities))
}

func (h *Handler) groupSummary(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathUUID(w, r, "groupID")
	if !ok {
		return
	}

	summary, err := h.service.GroupSummary(r.Context(), groupID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	perUser := make([]UserActivityCountView, 0, len(summary.PerUser))
	for _, row := range summary.PerUser {
		perUser = append(perUser, UserActivityCountView{
			UserID:   row.UserID,
			UserName: row.UserName,
			Count:    row.Count,
		})
	}

	resp := GroupSummaryResponse{
		GroupID:         summary.GroupID,
		TotalActivities: summary.TotalActivities,
		Activities:      toActivityWithUserViews(summary.Activities),
		PerUser:         perUser,
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateUserRequest is the payload for POST /users.
type CreateUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// CreateGroupRequest is the payload for POST /groups.
type CreateGroupRequest struct {
	Name     string    `json:"name"`
	OwnerID  uuid.UUID `json:"ownerId"`
	GoalDays int       `json:"goalDays"`
}

// JoinGroupRequest is the payload for POST /groups/{groupID}/join.
type JoinGroupRequest struct {
	UserID uuid.UUID `json:"userId"`
}

// CreateActivityRequest is the payload for POST /groups/{groupID}/activities.
type CreateActivityRequest struct {
	UserID      uuid.UUID `json:"userId"`
	Description string    `json:"description"`
}

// UserView exposes a user record.
type UserView struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// GroupView exposes a group record.
type GroupView struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	OwnerID   uuid.UUID `json:"ownerId"`
	GoalDays  int       `json:"goalDays"`
	CreatedAt time.Time `json:"createdAt"`
}

// GroupMemberView exposes one member of a group.
type GroupMemberView struct {
	UserID   uuid.UUID `json:"userId"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	JoinedAt time.Time `json:"joinedAt"`
}

// ActivityView exposes an activity record.
type ActivityView struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"userId"`
	GroupID     uuid.UUID `json:"groupId"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ActivityWithUserView exposes an activity annotated with the acting user's name.
type ActivityWithUserView struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"userId"`
	UserName    string    `json:"userName"`
	GroupID     uuid.UUID `json:"groupId"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// UserActivityCountView is one ranking row of the summary payload.
type UserActivityCountView struct {
	UserID   uuid.UUID `json:"userId"`
	UserName string    `json:"userName"`
	Count    int64     `json:"count"`
}

// GroupSummaryResponse packages the ranking payload.
type GroupSummaryResponse struct {
	GroupID         uuid.UUID               `json:"groupId"`
	TotalActivities int64                   `json:"totalActivities"`
	Activities      []ActivityWithUserView  `json:"activities"`
	PerUser         []UserActivityCountView `json:"perUser"`
}

func toUserView(u domain.User) UserView {
	return UserView{ID: u.ID, Email: u.Email, Name: u.Name, CreatedAt: u.CreatedAt}
}

func toGroupView(g domain.Group) GroupView {
	return GroupView{ID: g.ID, Name: g.Name, OwnerID: g.OwnerID, GoalDays: g.GoalDays, CreatedAt: g.CreatedAt}
}

func toActivityView(a domain.Activity) ActivityView {
	return ActivityView{ID: a.ID, UserID: a.UserID, GroupID: a.GroupID, Description: a.Description, CreatedAt: a.CreatedAt}
}

func toActivityWithUserViews(activities []domain.ActivityWithUser) []ActivityWithUserView {
	views := make([]ActivityWithUserView, 0, len(activities))
	for _, a := range activities {
		views = append(views, ActivityWithUserView{
			ID:          a.ID,
			UserID:      a.UserID,
			UserName:    a.UserName,
			GroupID:     a.GroupID,
			Description: a.Description,
			CreatedAt:   a.CreatedAt,
		})
	}
	return views
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrDuplicate):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrInvalidReference):
		writeError(w, http.StatusUnprocessableEntity, "invalid_reference", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
