package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Event types recorded by the repository and routed by the dispatcher.
const (
	EventGroupCreated   = "group.created"
	EventActivityLogged = "activity.logged"
)

// Topics events are published to.
const (
	TopicGroupEvents    = "study_group_events"
	TopicActivityEvents = "study_activity_events"
)

// GroupCreated is emitted when a group and its owner membership are persisted.
type GroupCreated struct {
	GroupID   uuid.UUID `json:"group_id"`
	Name      string    `json:"name"`
	OwnerID   uuid.UUID `json:"owner_id"`
	GoalDays  int       `json:"goal_days"`
	CreatedAt time.Time `json:"created_at"`
}

// ActivityLogged is emitted when a study activity is persisted.
type ActivityLogged struct {
	ActivityID  uuid.UUID `json:"activity_id"`
	GroupID     uuid.UUID `json:"group_id"`
	UserID      uuid.UUID `json:"user_id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
