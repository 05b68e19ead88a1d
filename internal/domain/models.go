package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered participant. Immutable after creation.
type User struct {
	ID        uuid.UUID
	Email     string
	Name      string
	CreatedAt time.Time
}

// Group is a collection of users pursuing a shared study goal measured in days.
type Group struct {
	ID        uuid.UUID
	Name      string
	OwnerID   uuid.UUID
	GoalDays  int
	CreatedAt time.Time
}

// Membership links a user to a group. The (user, group) pair is unique.
type Membership struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	GroupID   uuid.UUID
	CreatedAt time.Time
}

// Activity is a single logged study event by a user within a group.
type Activity struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	GroupID     uuid.UUID
	Description string
	CreatedAt   time.Time
}

// GroupMember is a membership joined with the member's user record.
type GroupMember struct {
	UserID   uuid.UUID
	Name     string
	Email    string
	JoinedAt time.Time
}

// ActivityWithUser is an activity annotated with the acting user's display name.
type ActivityWithUser struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	UserName    string
	GroupID     uuid.UUID
	Description string
	CreatedAt   time.Time
}

// UserActivityCount is one ranking row: how many activities a user logged in a group.
type UserActivityCount struct {
	UserID   uuid.UUID
	UserName string
	Count    int64
}

// GroupSummary aggregates a group's activity feed with its per-user ranking.
// PerUser is ordered by count descending, display name ascending for ties.
type GroupSummary struct {
	GroupID         uuid.UUID
	TotalActivities int64
	Activities      []ActivityWithUser
	PerUser         []UserActivityCount
}
