// Package domain defines the business logic for the study ranking service.
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository captures persistence operations.
type Repository interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user User) error
	ListUsers(ctx context.Context) ([]User, error)

	// CreateGroup persists the group and the owner's membership atomically.
	CreateGroup(ctx context.Context, group Group, ownerMembership Membership) error
	// JoinGroup inserts the membership, silently ignoring a duplicate (user, group) pair.
	JoinGroup(ctx context.Context, membership Membership) error
	ListUserGroups(ctx context.Context, userID uuid.UUID) ([]Group, error)
	ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]GroupMember, error)

	CreateActivity(ctx context.Context, activity Activity) error
	ListGroupActivities(ctx context.Context, groupID uuid.UUID) ([]ActivityWithUser, error)
	GroupSummary(ctx context.Context, groupID uuid.UUID) (GroupSummary, error)
}

// Service orchestrates user, group, and activity workflows.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Ping round-trips a trivial query against the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// CreateUserInput captures the payload from the API layer.
type CreateUserInput struct {
	Email string
	Name  string
}

// CreateUser registers a user. Email uniqueness is enforced by the store;
// a violation surfaces as ErrDuplicate.
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (*User, error) {
	user := User{
		ID:        uuid.New(),
		Email:     input.Email,
		Name:      input.Name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns all users, newest first.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// CreateGroupInput captures the payload from the API layer.
type CreateGroupInput struct {
	Name     string
	OwnerID  uuid.UUID
	GoalDays int
}

// CreateGroup creates a group and enrolls its owner in one transaction.
// Owner existence is not pre-validated; the store's foreign key rejects an
// unknown owner and the whole operation rolls back.
func (s *Service) CreateGroup(ctx context.Context, input CreateGroupInput) (*Group, error) {
	now := time.Now().UTC()
	group := Group{
		ID:        uuid.New(),
		Name:      input.Name,
		OwnerID:   input.OwnerID,
		GoalDays:  input.GoalDays,
		CreatedAt: now,
	}
	membership := Membership{
		ID:        uuid.New(),
		UserID:    input.OwnerID,
		GroupID:   group.ID,
		CreatedAt: now,
	}
	if err := s.repo.CreateGroup(ctx, group, membership); err != nil {
		return nil, err
	}
	return &group, nil
}

// JoinGroup enrolls the user in the group. Joining a group the user already
// belongs to is a no-op; callers cannot distinguish the two outcomes.
func (s *Service) JoinGroup(ctx context.Context, groupID, userID uuid.UUID) error {
	membership := Membership{
		ID:        uuid.New(),
		UserID:    userID,
		GroupID:   groupID,
		CreatedAt: time.Now().UTC(),
	}
	return s.repo.JoinGroup(ctx, membership)
}

// ListUserGroups returns the groups a user belongs to, newest first.
func (s *Service) ListUserGroups(ctx context.Context, userID uuid.UUID) ([]Group, error) {
	return s.repo.ListUserGroups(ctx, userID)
}

// ListGroupMembers returns a group's members, oldest-joined first.
func (s *Service) ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]GroupMember, error) {
	return s.repo.ListGroupMembers(ctx, groupID)
}

// LogActivityInput captures the payload from the API layer.
type LogActivityInput struct {
	GroupID     uuid.UUID
	UserID      uuid.UUID
	Description string
}

// LogActivity records a study activity. The acting user is not required to be
// a member of the group.
func (s *Service) LogActivity(ctx context.Context, input LogActivityInput) (*Activity, error) {
	activity := Activity{
		ID:          uuid.New(),
		UserID:      input.UserID,
		GroupID:     input.GroupID,
		Description: input.Description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreateActivity(ctx, activity); err != nil {
		return nil, err
	}
	return &activity, nil
}

// ListGroupActivities returns a group's activity feed, most recent first.
func (s *Service) ListGroupActivities(ctx context.Context, groupID uuid.UUID) ([]ActivityWithUser, error) {
	return s.repo.ListGroupActivities(ctx, groupID)
}

// GroupSummary computes the total, feed, and per-user ranking for a group.
// A nonexistent group yields a zero total and empty lists, not an error.
func (s *Service) GroupSummary(ctx context.Context, groupID uuid.UUID) (GroupSummary, error) {
	return s.repo.GroupSummary(ctx, groupID)
}
