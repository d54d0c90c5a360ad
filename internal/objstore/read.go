package objstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
)

// Get returns the latest state at loc, which is a tombstone when the object
// was deleted. Fails with graffiti.ErrNotFound when loc never held anything.
func (s *Store) Get(ctx context.Context, loc graffiti.Location) (graffiti.Object, error) {
	r, err := scanObject(s.db.QueryRowContext(ctx, `
		SELECT `+objectColumns+` FROM objects o
		WHERE o.source = ? AND o.actor = ? AND o.name = ?
		ORDER BY o.tombstone ASC, o.last_modified DESC, o.id DESC
		LIMIT 1
	`, loc.Source, loc.Actor, loc.Name))
	if errors.Is(err, sql.ErrNoRows) {
		return graffiti.Object{}, graffiti.NewError(graffiti.KindNotFound, "no object at %s", loc)
	}
	if err != nil {
		return graffiti.Object{}, fmt.Errorf("get %s: %w", loc, err)
	}
	return r.object, nil
}

// Discover returns the states tagged with any of channels. Without since
// only live objects are returned; with since, every state (tombstones
// included) stamped strictly after it.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) Discover(ctx context.Context, channels []string, since *int64) ([]graffiti.Object, error) {
	if len(channels) == 0 {
		return []graffiti.Object{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(channels)), ",")
	args := make([]any, 0, len(channels)+2)
	for _, ch := range channels {
		args = append(args, ch)
	}
	where, sinceArgs := sinceClause(since)
	args = append(args, sinceArgs...)

	objects, err := s.queryObjects(ctx, `
		SELECT `+objectColumns+` FROM objects o
		WHERE o.id IN (
			SELECT object_id FROM object_channels WHERE channel IN (`+placeholders+`)
		) AND `+where+`
		ORDER BY o.last_modified ASC, o.tombstone ASC, o.id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	return objects, nil
}

// Orphans returns actor's states that carry no channels, with the same
// since semantics as Discover.
func (s *Store) Orphans(ctx context.Context, actor string, since *int64) ([]graffiti.Object, error) {
	where, sinceArgs := sinceClause(since)
	args := append([]any{actor}, sinceArgs...)

	objects, err := s.queryObjects(ctx, `
		SELECT `+objectColumns+` FROM objects o
		WHERE o.actor = ? AND o.channels = '[]' AND `+where+`
		ORDER BY o.last_modified ASC, o.tombstone ASC, o.id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("orphans: %w", err)
	}
	return objects, nil
}

// ChannelStats aggregates actor's live objects per channel. With since,
// objects stamped at or before it are left out of the counts.
//
// Results are ordered by channel. Returns an empty slice (not nil) if the
// actor has no channeled objects.
func (s *Store) ChannelStats(ctx context.Context, actor string, since *int64) ([]graffiti.ChannelStat, error) {
	var lower int64 = -1
	if since != nil {
		lower = *since
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.channel, COUNT(*), MAX(o.last_modified)
		FROM object_channels c
		JOIN objects o ON o.id = c.object_id
		WHERE o.actor = ? AND o.tombstone = 0 AND o.last_modified > ?
		GROUP BY c.channel
		ORDER BY c.channel COLLATE BINARY ASC
	`, actor, lower)
	if err != nil {
		return nil, fmt.Errorf("channel stats: %w", err)
	}
	defer rows.Close()

	stats := []graffiti.ChannelStat{}
	for rows.Next() {
		var st graffiti.ChannelStat
		if err := rows.Scan(&st.Channel, &st.Count, &st.LastModified); err != nil {
			return nil, fmt.Errorf("scan channel stat: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channel stats: %w", err)
	}
	return stats, nil
}

// sinceClause builds the liveness/time filter shared by Discover and
// Orphans.
func sinceClause(since *int64) (string, []any) {
	if since == nil {
		return "o.tombstone = 0", nil
	}
	return "o.last_modified > ?", []any{*since}
}

func (s *Store) queryObjects(ctx context.Context, query string, args ...any) ([]graffiti.Object, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	objects := []graffiti.Object{}
	for rows.Next() {
		r, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		objects = append(objects, r.object)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate objects: %w", err)
	}
	return objects, nil
}
