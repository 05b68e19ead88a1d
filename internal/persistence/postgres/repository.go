// Package postgres provides pgx-backed persistence for the study ranking service.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/studyrank/internal/domain"
	"example.com/studyrank/internal/observability"
	"example.com/studyrank/internal/outbox"
)

// Repository provides Postgres-backed persistence for users, groups,
// memberships, activities, and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ domain.Repository = (*Repository)(nil)

// Ping verifies store connectivity with a trivial query.
func (r *Repository) Ping(ctx context.Context) error {
	var one int
	if err := r.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return mapError(err)
	}
	return nil
}

// CreateUser inserts a user. Email uniqueness is enforced by the store.
func (r *Repository) CreateUser(ctx context.Context, user domain.User) error {
	const stmt = `INSERT INTO users (id, email, name, created_at) VALUES ($1,$2,$3,$4)`

	_, err := r.pool.Exec(ctx, stmt, user.ID, user.Email, user.Name, user.CreatedAt)
	return mapError(err)
}

// ListUsers returns all users, newest first.
func (r *Repository) ListUsers(ctx context.Context) ([]domain.User, error) {
	const query = `SELECT id, email, name, created_at FROM users ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt); err != nil {
			return nil, mapError(err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return users, nil
}

// CreateGroup persists the group, the owner's membership, and the outbox event
// inside a single transaction. Both inserts commit together or neither persists.
func (r *Repository) CreateGroup(ctx context.Context, group domain.Group, ownerMembership domain.Membership) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapError(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const insertGroup = `INSERT INTO groups (id, name, owner_id, goal_days, created_at)
        VALUES ($1,$2,$3,$4,$5)`

	if _, err = tx.Exec(ctx, insertGroup, group.ID, group.Name, group.OwnerID, group.GoalDays, group.CreatedAt); err != nil {
		return mapError(err)
	}

	const insertMembership = `INSERT INTO group_memberships (id, user_id, group_id, created_at)
        VALUES ($1,$2,$3,$4)`

	if _, err = tx.Exec(ctx, insertMembership, ownerMembership.ID, ownerMembership.UserID, ownerMembership.GroupID, ownerMembership.CreatedAt); err != nil {
		return mapError(err)
	}

	if err = insertOutbox(ctx, tx, outbox.EventGroupCreated, group.ID, outbox.GroupCreated{
		GroupID:   group.ID,
		Name:      group.Name,
		OwnerID:   group.OwnerID,
		GoalDays:  group.GoalDays,
		CreatedAt: group.CreatedAt,
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

// JoinGroup inserts the membership. A duplicate (user, group) pair is silently
// absorbed by the conflict clause; any other failure propagates.
func (r *Repository) JoinGroup(ctx context.Context, membership domain.Membership) error {
	const stmt = `INSERT INTO group_memberships (id, user_id, group_id, created_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (user_id, group_id) DO NOTHING`

	_, err := r.pool.Exec(ctx, stmt, membership.ID, membership.UserID, membership.GroupID, membership.CreatedAt)
	return mapError(err)
}

// ListUserGroups returns the groups a user belongs to, ordered by group
// creation time descending.
func (r *Repository) ListUserGroups(ctx context.Context, userID uuid.UUID) ([]domain.Group, error) {
	const query = `SELECT g.id, g.name, g.owner_id, g.goal_days, g.created_at
        FROM groups g
        JOIN group_memberships gm ON gm.group_id = g.id
        WHERE gm.user_id = $1
        ORDER BY g.created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	groups := make([]domain.Group, 0)
	for rows.Next() {
		var g domain.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.OwnerID, &g.GoalDays, &g.CreatedAt); err != nil {
			return nil, mapError(err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return groups, nil
}

// ListGroupMembers returns a group's members ordered by join time ascending.
func (r *Repository) ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]domain.GroupMember, error) {
	const query = `SELECT u.id, u.name, u.email, gm.created_at
        FROM group_memberships gm
        JOIN users u ON u.id = gm.user_id
        WHERE gm.group_id = $1
        ORDER BY gm.created_at ASC`

	rows, err := r.pool.Query(ctx, query, groupID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	members := make([]domain.GroupMember, 0)
	for rows.Next() {
		var m domain.GroupMember
		if err := rows.Scan(&m.UserID, &m.Name, &m.Email, &m.JoinedAt); err != nil {
			return nil, mapError(err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return members, nil
}

// CreateActivity persists the activity and its outbox event in one transaction.
func (r *Repository) CreateActivity(ctx context.Context, activity domain.Activity) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapError(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `INSERT INTO activities (id, user_id, group_id, description, created_at)
        VALUES ($1,$2,$3,$4,$5)`

	if _, err = tx.Exec(ctx, stmt, activity.ID, activity.UserID, activity.GroupID, activity.Description, activity.CreatedAt); err != nil {
		return mapError(err)
	}

	if err = insertOutbox(ctx, tx, outbox.EventActivityLogged, activity.ID, outbox.ActivityLogged{
		ActivityID:  activity.ID,
		GroupID:     activity.GroupID,
		UserID:      activity.UserID,
		Description: activity.Description,
		CreatedAt:   activity.CreatedAt,
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return mapError(err)
	}
	observability.RecordActivityLogged(activity.CreatedAt)
	return nil
}

// ListGroupActivities returns a group's activities joined with the acting
// user's display name, most recent first.
func (r *Repository) ListGroupActivities(ctx context.Context, groupID uuid.UUID) ([]domain.ActivityWithUser, error) {
	rows, err := r.pool.Query(ctx, groupActivitiesQuery, groupID)
	if err != nil {
		return nil, mapError(err)
	}
	return scanActivitiesWithUser(rows)
}

const groupActivitiesQuery = `SELECT a.id, a.user_id, u.name, a.group_id, a.description, a.created_at
        FROM activities a
        JOIN users u ON u.id = a.user_id
        WHERE a.group_id = $1
        ORDER BY a.created_at DESC`

// GroupSummary computes the total, the feed, and the per-user ranking against
// a single read snapshot so the three results cannot diverge under concurrent
// writes. Ranking order: count descending, display name ascending for ties.
func (r *Repository) GroupSummary(ctx context.Context, groupID uuid.UUID) (domain.GroupSummary, error) {
	summary := domain.GroupSummary{
		GroupID:    groupID,
		Activities: make([]domain.ActivityWithUser, 0),
		PerUser:    make([]domain.UserActivityCount, 0),
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return summary, mapError(err)
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM activities WHERE group_id = $1`, groupID).Scan(&summary.TotalActivities); err != nil {
		return summary, mapError(err)
	}

	rows, err := tx.Query(ctx, groupActivitiesQuery, groupID)
	if err != nil {
		return summary, mapError(err)
	}
	activities, err := scanActivitiesWithUser(rows)
	if err != nil {
		return summary, err
	}
	summary.Activities = activities

	const rankingQuery = `SELECT a.user_id, u.name, COUNT(*) AS activities_count
        FROM activities a
        JOIN users u ON u.id = a.user_id
        WHERE a.group_id = $1
        GROUP BY a.user_id, u.name
        ORDER BY activities_count DESC, u.name ASC`

	rankRows, err := tx.Query(ctx, rankingQuery, groupID)
	if err != nil {
		return summary, mapError(err)
	}
	defer rankRows.Close()

	for rankRows.Next() {
		var row domain.UserActivityCount
		if err := rankRows.Scan(&row.UserID, &row.UserName, &row.Count); err != nil {
			return summary, mapError(err)
		}
		summary.PerUser = append(summary.PerUser, row)
	}
	if err := rankRows.Err(); err != nil {
		return summary, mapError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return summary, mapError(err)
	}
	return summary, nil
}

func scanActivitiesWithUser(rows pgx.Rows) ([]domain.ActivityWithUser, error) {
	defer rows.Close()

	activities := make([]domain.ActivityWithUser, 0)
	for rows.Next() {
		var a domain.ActivityWithUser
		if err := rows.Scan(&a.ID, &a.UserID, &a.UserName, &a.GroupID, &a.Description, &a.CreatedAt); err != nil {
			return nil, mapError(err)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return activities, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, eventType string, aggregateID uuid.UUID, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s", aggregateID, eventType)

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err = tx.Exec(ctx, stmt,
		meta.AggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.PartitionKeyFn(aggregateID, body),
		body,
		dedupeKey,
	)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	AggregateType  string
	Topic          string
	PartitionKeyFn func(aggregateID uuid.UUID, payload []byte) string
}

var eventCatalog = map[string]EventMetadata{
	outbox.EventGroupCreated: {
		AggregateType: "group",
		Topic:         outbox.TopicGroupEvents,
		PartitionKeyFn: func(aggregateID uuid.UUID, _ []byte) string {
			return aggregateID.String()
		},
	},
	outbox.EventActivityLogged: {
		AggregateType: "activity",
		Topic:         outbox.TopicActivityEvents,
		PartitionKeyFn: func(aggregateID uuid.UUID, payload []byte) string {
			var evt outbox.ActivityLogged
			if err := json.Unmarshal(payload, &evt); err != nil {
				return aggregateID.String()
			}
			return fmt.Sprintf("%s:%s", evt.GroupID, evt.UserID)
		},
	},
}

// mapError converts pgx/pgconn errors into domain errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", domain.ErrDuplicate, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", domain.ErrInvalidReference, pgErr.ConstraintName)
		}
	}
	return err
}
