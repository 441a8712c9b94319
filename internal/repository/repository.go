// Package repository implements C2: the single durable store of record for
// UAVs, missions, and cluster missions. Every other component's in-memory
// view is a derived cache rebuildable from this store — it never becomes
// the source of truth itself.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/falconmind/clustercenter/pkg/database"
	"github.com/falconmind/clustercenter/pkg/errs"
	"github.com/falconmind/clustercenter/pkg/models"
	"github.com/jackc/pgx/v5"
)

// Repository is the durable store for the control plane's core entities.
type Repository struct {
	db *database.Database
}

// New creates a Repository backed by db.
func New(db *database.Database) *Repository {
	return &Repository{db: db}
}

// Migrate creates the tables the repository needs, if absent. Idempotent.
func (r *Repository) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS uavs (
			id TEXT PRIMARY KEY,
			data JSONB NOT NULL,
			version BIGINT NOT NULL DEFAULT 1,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS missions (
			id TEXT PRIMARY KEY,
			data JSONB NOT NULL,
			version BIGINT NOT NULL DEFAULT 1,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS cluster_missions (
			id TEXT PRIMARY KEY,
			data JSONB NOT NULL,
			version BIGINT NOT NULL DEFAULT 1,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS raft_state (
			node_id TEXT PRIMARY KEY,
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// PutUAV upserts a UAV record, unconditionally bumping its version.
func (r *Repository) PutUAV(ctx context.Context, u *models.UAV) error {
	data, err := json.Marshal(u)
	if err != nil {
		return errs.NewFatal("UAV_ENCODE", "failed to encode UAV", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO uavs (id, data, version, updated_at)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (id) DO UPDATE SET data = $2, version = uavs.version + 1, updated_at = now()
	`, u.ID, data)
	if err != nil {
		return errs.NewTransient("UAV_PUT", "failed to persist UAV", err)
	}
	return nil
}

// GetUAV returns a single UAV by id.
func (r *Repository) GetUAV(ctx context.Context, id string) (*models.UAV, error) {
	var data []byte
	err := r.db.Pool.QueryRow(ctx, `SELECT data FROM uavs WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NewNotFound("UAV_NOT_FOUND", "uav not found")
	}
	if err != nil {
		return nil, errs.NewTransient("UAV_GET", "failed to load uav", err)
	}
	var u models.UAV
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, errs.NewFatal("UAV_DECODE", "failed to decode uav", err)
	}
	return &u, nil
}

// ListUAVs returns every UAV in the store.
func (r *Repository) ListUAVs(ctx context.Context) ([]*models.UAV, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT data FROM uavs`)
	if err != nil {
		return nil, errs.NewTransient("UAV_LIST", "failed to list uavs", err)
	}
	defer rows.Close()

	var out []*models.UAV
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, errs.NewFatal("UAV_SCAN", "failed to scan uav row", err)
		}
		var u models.UAV
		if err := json.Unmarshal(data, &u); err != nil {
			return nil, errs.NewFatal("UAV_DECODE", "failed to decode uav", err)
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

// DeleteUAV removes a UAV from the store.
func (r *Repository) DeleteUAV(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM uavs WHERE id = $1`, id)
	if err != nil {
		return errs.NewTransient("UAV_DELETE", "failed to delete uav", err)
	}
	return nil
}

// PutMission upserts a mission record.
func (r *Repository) PutMission(ctx context.Context, m *models.Mission) error {
	data, err := json.Marshal(m)
	if err != nil {
		return errs.NewFatal("MISSION_ENCODE", "failed to encode mission", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO missions (id, data, version, updated_at)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (id) DO UPDATE SET data = $2, version = missions.version + 1, updated_at = now()
	`, m.ID, data)
	if err != nil {
		return errs.NewTransient("MISSION_PUT", "failed to persist mission", err)
	}
	return nil
}

// GetMission returns a single mission by id.
func (r *Repository) GetMission(ctx context.Context, id string) (*models.Mission, error) {
	var data []byte
	err := r.db.Pool.QueryRow(ctx, `SELECT data FROM missions WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NewNotFound("MISSION_NOT_FOUND", "mission not found")
	}
	if err != nil {
		return nil, errs.NewTransient("MISSION_GET", "failed to load mission", err)
	}
	var m models.Mission
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errs.NewFatal("MISSION_DECODE", "failed to decode mission", err)
	}
	return &m, nil
}

// ListMissions returns every mission in the store.
func (r *Repository) ListMissions(ctx context.Context) ([]*models.Mission, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT data FROM missions`)
	if err != nil {
		return nil, errs.NewTransient("MISSION_LIST", "failed to list missions", err)
	}
	defer rows.Close()

	var out []*models.Mission
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, errs.NewFatal("MISSION_SCAN", "failed to scan mission row", err)
		}
		var m models.Mission
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, errs.NewFatal("MISSION_DECODE", "failed to decode mission", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// DeleteMission removes a mission from the store.
func (r *Repository) DeleteMission(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM missions WHERE id = $1`, id)
	if err != nil {
		return errs.NewTransient("MISSION_DELETE", "failed to delete mission", err)
	}
	return nil
}

// PutClusterMission upserts a cluster mission record.
func (r *Repository) PutClusterMission(ctx context.Context, c *models.ClusterMission) error {
	data, err := json.Marshal(c)
	if err != nil {
		return errs.NewFatal("CLUSTER_ENCODE", "failed to encode cluster mission", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO cluster_missions (id, data, version, updated_at)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (id) DO UPDATE SET data = $2, version = cluster_missions.version + 1, updated_at = now()
	`, c.ID, data)
	if err != nil {
		return errs.NewTransient("CLUSTER_PUT", "failed to persist cluster mission", err)
	}
	return nil
}

// GetClusterMission returns a single cluster mission by id.
func (r *Repository) GetClusterMission(ctx context.Context, id string) (*models.ClusterMission, error) {
	var data []byte
	err := r.db.Pool.QueryRow(ctx, `SELECT data FROM cluster_missions WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NewNotFound("CLUSTER_NOT_FOUND", "cluster mission not found")
	}
	if err != nil {
		return nil, errs.NewTransient("CLUSTER_GET", "failed to load cluster mission", err)
	}
	var c models.ClusterMission
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errs.NewFatal("CLUSTER_DECODE", "failed to decode cluster mission", err)
	}
	return &c, nil
}

// ListClusterMissions returns every cluster mission in the store.
func (r *Repository) ListClusterMissions(ctx context.Context) ([]*models.ClusterMission, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT data FROM cluster_missions`)
	if err != nil {
		return nil, errs.NewTransient("CLUSTER_LIST", "failed to list cluster missions", err)
	}
	defer rows.Close()

	var out []*models.ClusterMission
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, errs.NewFatal("CLUSTER_SCAN", "failed to scan cluster mission row", err)
		}
		var c models.ClusterMission
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, errs.NewFatal("CLUSTER_DECODE", "failed to decode cluster mission", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// RaftPersistentState is the subset of Raft state that must survive a
// restart: the current term, the candidate voted for this term, and the
// log itself. commitIndex/lastApplied are volatile and rebuilt on restart.
type RaftPersistentState struct {
	CurrentTerm uint64
	VotedFor    string
	Log         []*models.LogEntry
}

// PutRaftState persists a node's Raft state, keyed by node id.
func (r *Repository) PutRaftState(ctx context.Context, nodeID string, state *RaftPersistentState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return errs.NewFatal("RAFT_STATE_ENCODE", "failed to encode raft state", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO raft_state (node_id, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (node_id) DO UPDATE SET data = $2, updated_at = now()
	`, nodeID, data)
	if err != nil {
		return errs.NewTransient("RAFT_STATE_PUT", "failed to persist raft state", err)
	}
	return nil
}

// GetRaftState loads a node's persisted Raft state. Returns a zero-value
// state with no error if the node has never persisted one before.
func (r *Repository) GetRaftState(ctx context.Context, nodeID string) (*RaftPersistentState, error) {
	var data []byte
	err := r.db.Pool.QueryRow(ctx, `SELECT data FROM raft_state WHERE node_id = $1`, nodeID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return &RaftPersistentState{}, nil
	}
	if err != nil {
		return nil, errs.NewTransient("RAFT_STATE_GET", "failed to load raft state", err)
	}
	var state RaftPersistentState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errs.NewFatal("RAFT_STATE_DECODE", "failed to decode raft state", err)
	}
	return &state, nil
}
