package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"example.com/studyrank/internal/domain"
)

func newTestServer() (*http.ServeMux, *fakeRepo) {
	repo := newFakeRepo()
	handler := NewHandler(domain.NewService(repo))
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return mux, repo
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func createUser(t *testing.T, mux *http.ServeMux, email, name string) UserView {
	t.Helper()
	rr := doJSON(t, mux, http.MethodPost, "/users", CreateUserRequest{Email: email, Name: name})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create user: expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	var user UserView
	decode(t, rr, &user)
	return user
}

func createGroup(t *testing.T, mux *http.ServeMux, name string, owner uuid.UUID, goalDays int) GroupView {
	t.Helper()
	rr := doJSON(t, mux, http.MethodPost, "/groups", CreateGroupRequest{Name: name, OwnerID: owner, GoalDays: goalDays})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create group: expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	var group GroupView
	decode(t, rr, &group)
	return group
}

func logActivity(t *testing.T, mux *http.ServeMux, groupID, userID uuid.UUID, description string) {
	t.Helper()
	rr := doJSON(t, mux, http.MethodPost, "/groups/"+groupID.String()+"/activities",
		CreateActivityRequest{UserID: userID, Description: description})
	if rr.Code != http.StatusCreated {
		t.Fatalf("log activity: expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHealth(t *testing.T) {
	mux, _ := newTestServer()
	rr := doJSON(t, mux, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if rr.Body.String() != "ok" {
		t.Fatalf("expected body %q got %q", "ok", rr.Body.String())
	}
}

func TestUserRoundTrip(t *testing.T) {
	mux, _ := newTestServer()

	created := createUser(t, mux, "amy@example.com", "Amy")
	if created.ID == uuid.Nil {
		t.Fatal("expected assigned user id")
	}

	rr := doJSON(t, mux, http.MethodGet, "/users", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}

	var users []UserView
	decode(t, rr, &users)

	found := false
	for _, u := range users {
		if u.ID == created.ID && u.Email == "amy@example.com" && u.Name == "Amy" {
			found = true
		}
	}
	if !found {
		t.Fatalf("created user missing from listing: %s", rr.Body.String())
	}
}

func TestCreateUserDuplicateEmailConflict(t *testing.T) {
	mux, _ := newTestServer()

	createUser(t, mux, "amy@example.com", "Amy")

	rr := doJSON(t, mux, http.MethodPost, "/users", CreateUserRequest{Email: "amy@example.com", Name: "Amy Again"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCreateGroupEnrollsOwner(t *testing.T) {
	mux, repo := newTestServer()

	owner := createUser(t, mux, "amy@example.com", "Amy")
	group := createGroup(t, mux, "morning crew", owner.ID, 30)

	if group.OwnerID != owner.ID || group.GoalDays != 30 {
		t.Fatalf("unexpected group record: %+v", group)
	}
	if repo.membershipCount(owner.ID, group.ID) != 1 {
		t.Fatal("owner was not enrolled on group creation")
	}

	rr := doJSON(t, mux, http.MethodGet, "/users/"+owner.ID.String()+"/groups", nil)
	var groups []GroupView
	decode(t, rr, &groups)
	if len(groups) != 1 || groups[0].ID != group.ID {
		t.Fatalf("expected owner's group listing to contain the new group: %s", rr.Body.String())
	}
}

func TestCreateGroupUnknownOwner(t *testing.T) {
	mux, _ := newTestServer()

	rr := doJSON(t, mux, http.MethodPost, "/groups", CreateGroupRequest{Name: "ghosts", OwnerID: uuid.New(), GoalDays: 7})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestJoinGroupIdempotent(t *testing.T) {
	mux, repo := newTestServer()

	owner := createUser(t, mux, "amy@example.com", "Amy")
	member := createUser(t, mux, "bob@example.com", "Bob")
	group := createGroup(t, mux, "morning crew", owner.ID, 30)

	for i := 0; i < 2; i++ {
		rr := doJSON(t, mux, http.MethodPost, "/groups/"+group.ID.String()+"/join", JoinGroupRequest{UserID: member.ID})
		if rr.Code != http.StatusNoContent {
			t.Fatalf("join %d: expected 204 got %d: %s", i+1, rr.Code, rr.Body.String())
		}
	}

	if got := repo.membershipCount(member.ID, group.ID); got != 1 {
		t.Fatalf("expected exactly one membership row, got %d", got)
	}

	rr := doJSON(t, mux, http.MethodGet, "/groups/"+group.ID.String()+"/members", nil)
	var members []GroupMemberView
	decode(t, rr, &members)
	if len(members) != 2 {
		t.Fatalf("expected 2 members (owner + joiner), got %d", len(members))
	}
	if members[0].UserID != owner.ID {
		t.Fatal("expected members ordered oldest-joined first")
	}
}

func TestJoinGroupInvalidGroupID(t *testing.T) {
	mux, _ := newTestServer()

	rr := doJSON(t, mux, http.MethodPost, "/groups/not-a-uuid/join", JoinGroupRequest{UserID: uuid.New()})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestGroupActivitiesNewestFirst(t *testing.T) {
	mux, repo := newTestServer()

	owner := createUser(t, mux, "amy@example.com", "Amy")
	group := createGroup(t, mux, "morning crew", owner.ID, 30)

	base := time.Date(2026, time.August, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		repo.seedActivity(domain.Activity{
			ID:          uuid.New(),
			UserID:      owner.ID,
			GroupID:     group.ID,
			Description: fmt.Sprintf("session %d", i+1),
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
		})
	}

	rr := doJSON(t, mux, http.MethodGet, "/groups/"+group.ID.String()+"/activities", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}

	var feed []ActivityWithUserView
	decode(t, rr, &feed)
	if len(feed) != 3 {
		t.Fatalf("expected 3 activities got %d", len(feed))
	}
	for i, want := range []string{"session 3", "session 2", "session 1"} {
		if feed[i].Description != want {
			t.Fatalf("feed[%d]: expected %q got %q", i, want, feed[i].Description)
		}
		if feed[i].UserName != "Amy" {
			t.Fatalf("feed[%d]: expected user name Amy got %q", i, feed[i].UserName)
		}
	}
}

func TestGroupSummaryRankingTieBreak(t *testing.T) {
	mux, _ := newTestServer()

	// Bob is created first and logs first; Amy must still rank first on the tie.
	bob := createUser(t, mux, "bob@example.com", "Bob")
	amy := createUser(t, mux, "amy@example.com", "Amy")
	group := createGroup(t, mux, "morning crew", bob.ID, 30)

	rr := doJSON(t, mux, http.MethodPost, "/groups/"+group.ID.String()+"/join", JoinGroupRequest{UserID: amy.ID})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("join: expected 204 got %d", rr.Code)
	}

	logActivity(t, mux, group.ID, bob.ID, "bob 1")
	logActivity(t, mux, group.ID, bob.ID, "bob 2")
	logActivity(t, mux, group.ID, amy.ID, "amy 1")
	logActivity(t, mux, group.ID, amy.ID, "amy 2")

	rr = doJSON(t, mux, http.MethodGet, "/groups/"+group.ID.String()+"/activities/summary", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var summary GroupSummaryResponse
	decode(t, rr, &summary)

	if summary.TotalActivities != 4 {
		t.Fatalf("expected total 4 got %d", summary.TotalActivities)
	}
	var sum int64
	for _, row := range summary.PerUser {
		sum += row.Count
	}
	if sum != summary.TotalActivities {
		t.Fatalf("per-user counts sum to %d, want %d", sum, summary.TotalActivities)
	}

	if len(summary.PerUser) != 2 {
		t.Fatalf("expected 2 ranking rows got %d", len(summary.PerUser))
	}
	if summary.PerUser[0].UserName != "Amy" || summary.PerUser[1].UserName != "Bob" {
		t.Fatalf("expected tie broken by name ascending (Amy before Bob), got %q then %q",
			summary.PerUser[0].UserName, summary.PerUser[1].UserName)
	}
	if len(summary.Activities) != 4 {
		t.Fatalf("expected 4 feed entries got %d", len(summary.Activities))
	}
}

func TestGroupSummaryEmptyGroup(t *testing.T) {
	mux, _ := newTestServer()

	groupID := uuid.New()
	rr := doJSON(t, mux, http.MethodGet, "/groups/"+groupID.String()+"/activities/summary", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var summary GroupSummaryResponse
	decode(t, rr, &summary)
	if summary.TotalActivities != 0 || summary.GroupID != groupID {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	// Empty lists must serialise as [], not null.
	body := rr.Body.String()
	if !strings.Contains(body, `"activities":[]`) || !strings.Contains(body, `"perUser":[]`) {
		t.Fatalf("expected empty arrays in body: %s", body)
	}
}

// fakeRepo is an in-memory domain.Repository mirroring the store's ordering,
// uniqueness, and referential-integrity behavior.
type fakeRepo struct {
	users       []domain.User
	groups      []domain.Group
	memberships []domain.Membership
	activities  []domain.Activity
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{}
}

var _ domain.Repository = (*fakeRepo)(nil)

func (f *fakeRepo) Ping(ctx context.Context) error { return nil }

func (f *fakeRepo) CreateUser(ctx context.Context, user domain.User) error {
	for _, u := range f.users {
		if u.Email == user.Email {
			return fmt.Errorf("%w: users_email_key", domain.ErrDuplicate)
		}
	}
	f.users = append(f.users, user)
	return nil
}

func (f *fakeRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	out := append([]domain.User(nil), f.users...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeRepo) CreateGroup(ctx context.Context, group domain.Group, ownerMembership domain.Membership) error {
	if !f.userExists(group.OwnerID) {
		return fmt.Errorf("%w: groups_owner_id_fkey", domain.ErrInvalidReference)
	}
	f.groups = append(f.groups, group)
	f.memberships = append(f.memberships, ownerMembership)
	return nil
}

func (f *fakeRepo) JoinGroup(ctx context.Context, membership domain.Membership) error {
	if !f.userExists(membership.UserID) {
		return fmt.Errorf("%w: group_memberships_user_id_fkey", domain.ErrInvalidReference)
	}
	if !f.groupExists(membership.GroupID) {
		return fmt.Errorf("%w: group_memberships_group_id_fkey", domain.ErrInvalidReference)
	}
	for _, m := range f.memberships {
		if m.UserID == membership.UserID && m.GroupID == membership.GroupID {
			return nil // ON CONFLICT DO NOTHING
		}
	}
	f.memberships = append(f.memberships, membership)
	return nil
}

func (f *fakeRepo) ListUserGroups(ctx context.Context, userID uuid.UUID) ([]domain.Group, error) {
	out := make([]domain.Group, 0)
	for _, m := range f.memberships {
		if m.UserID != userID {
			continue
		}
		for _, g := range f.groups {
			if g.ID == m.GroupID {
				out = append(out, g)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeRepo) ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]domain.GroupMember, error) {
	out := make([]domain.GroupMember, 0)
	for _, m := range f.memberships {
		if m.GroupID != groupID {
			continue
		}
		for _, u := range f.users {
			if u.ID == m.UserID {
				out = append(out, domain.GroupMember{
					UserID:   u.ID,
					Name:     u.Name,
					Email:    u.Email,
					JoinedAt: m.CreatedAt,
				})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (f *fakeRepo) CreateActivity(ctx context.Context, activity domain.Activity) error {
	if !f.userExists(activity.UserID) {
		return fmt.Errorf("%w: activities_user_id_fkey", domain.ErrInvalidReference)
	}
	if !f.groupExists(activity.GroupID) {
		return fmt.Errorf("%w: activities_group_id_fkey", domain.ErrInvalidReference)
	}
	f.activities = append(f.activities, activity)
	return nil
}

func (f *fakeRepo) ListGroupActivities(ctx context.Context, groupID uuid.UUID) ([]domain.ActivityWithUser, error) {
	out := make([]domain.ActivityWithUser, 0)
	for _, a := range f.activities {
		if a.GroupID != groupID {
			continue
		}
		out = append(out, domain.ActivityWithUser{
			ID:          a.ID,
			UserID:      a.UserID,
			UserName:    f.userName(a.UserID),
			GroupID:     a.GroupID,
			Description: a.Description,
			CreatedAt:   a.CreatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeRepo) GroupSummary(ctx context.Context, groupID uuid.UUID) (domain.GroupSummary, error) {
	activities, _ := f.ListGroupActivities(ctx, groupID)

	counts := make(map[uuid.UUID]int64)
	for _, a := range activities {
		counts[a.UserID]++
	}
	perUser := make([]domain.UserActivityCount, 0, len(counts))
	for userID, count := range counts {
		perUser = append(perUser, domain.UserActivityCount{
			UserID:   userID,
			UserName: f.userName(userID),
			Count:    count,
		})
	}
	sort.SliceStable(perUser, func(i, j int) bool {
		if perUser[i].Count != perUser[j].Count {
			return perUser[i].Count > perUser[j].Count
		}
		return perUser[i].UserName < perUser[j].UserName
	})

	return domain.GroupSummary{
		GroupID:         groupID,
		TotalActivities: int64(len(activities)),
		Activities:      activities,
		PerUser:         perUser,
	}, nil
}

func (f *fakeRepo) seedActivity(activity domain.Activity) {
	f.activities = append(f.activities, activity)
}

func (f *fakeRepo) membershipCount(userID, groupID uuid.UUID) int {
	count := 0
	for _, m := range f.memberships {
		if m.UserID == userID && m.GroupID == groupID {
			count++
		}
	}
	return count
}

func (f *fakeRepo) userExists(id uuid.UUID) bool {
	for _, u := range f.users {
		if u.ID == id {
			return true
		}
	}
	return false
}

func (f *fakeRepo) groupExists(id uuid.UUID) bool {
	for _, g := range f.groups {
		if g.ID == id {
			return true
		}
	}
	return false
}

func (f *fakeRepo) userName(id uuid.UUID) string {
	for _, u := range f.users {
		if u.ID == id {
			return u.Name
		}
	}
	return ""
}
