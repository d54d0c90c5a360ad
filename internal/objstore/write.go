package objstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/graffiti-garden/implementation-federated/internal/clock"
	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
)

// WriteResult is the effect of one write.
type WriteResult struct {
	// Previous is the replaced state, tombstoned and stamped with the new
	// state's LastModified. Writes to an empty location report
	// graffiti.Vacant.
	Previous graffiti.Object

	// Current is the new live state. Nil for deletes.
	Current *graffiti.Object

	// Created is set when the location held no live object.
	Created bool
}

// UpdateFunc computes the next state of a live object. schema is the one
// the object was put with, nil if none.
type UpdateFunc func(current graffiti.Object, schema graffiti.Schema) (graffiti.Object, error)

// Put stores obj as the live state at its location, tombstoning whatever
// was live there. schema is kept with the new state and inherited by
// later updates.
func (s *Store) Put(ctx context.Context, obj graffiti.Object, schema graffiti.Schema) (WriteResult, error) {
	var res WriteResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res = WriteResult{}
		cur, found, last, err := readCurrent(ctx, tx, obj.Location)
		if err != nil {
			return err
		}
		lm := clock.After(s.clock, last)

		if found {
			if err := tombstone(ctx, tx, cur.id, lm); err != nil {
				return err
			}
			res.Previous = stamped(cur.object, lm)
		} else {
			res.Previous = graffiti.Vacant(obj.Location, lm)
			res.Created = true
		}

		next := obj.Clone()
		next.Channels = graffiti.NormalizeChannels(next.Channels)
		next.Tombstone = false
		next.LastModified = lm
		if err := insert(ctx, tx, next, schema); err != nil {
			return err
		}
		res.Current = &next
		return nil
	})
	if err != nil {
		return WriteResult{}, fmt.Errorf("put %s: %w", obj.Location, err)
	}
	return res, nil
}

// Update replaces the live object at loc with fn's result. Errors returned
// by fn abort the write unchanged. Fails with graffiti.ErrNotFound when
// nothing is live at loc.
func (s *Store) Update(ctx context.Context, loc graffiti.Location, fn UpdateFunc) (WriteResult, error) {
	var res WriteResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res = WriteResult{}
		cur, found, last, err := readCurrent(ctx, tx, loc)
		if err != nil {
			return err
		}
		if !found {
			return graffiti.NewError(graffiti.KindNotFound, "no object at %s", loc)
		}

		next, err := fn(cur.object.Clone(), cur.schema)
		if err != nil {
			return err
		}

		lm := clock.After(s.clock, last)
		if err := tombstone(ctx, tx, cur.id, lm); err != nil {
			return err
		}
		res.Previous = stamped(cur.object, lm)

		next.Location = cur.object.Location
		next.Channels = graffiti.NormalizeChannels(next.Channels)
		next.Tombstone = false
		next.LastModified = lm
		if err := insert(ctx, tx, next, cur.schema); err != nil {
			return err
		}
		res.Current = &next
		return nil
	})
	if err != nil {
		return WriteResult{}, fmt.Errorf("update %s: %w", loc, err)
	}
	return res, nil
}

// Delete tombstones the live object at loc. Fails with graffiti.ErrNotFound
// when nothing is live at loc.
func (s *Store) Delete(ctx context.Context, loc graffiti.Location) (WriteResult, error) {
	var res WriteResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res = WriteResult{}
		cur, found, last, err := readCurrent(ctx, tx, loc)
		if err != nil {
			return err
		}
		if !found {
			return graffiti.NewError(graffiti.KindNotFound, "no object at %s", loc)
		}
		lm := clock.After(s.clock, last)
		if err := tombstone(ctx, tx, cur.id, lm); err != nil {
			return err
		}
		res.Previous = stamped(cur.object, lm)
		return nil
	})
	if err != nil {
		return WriteResult{}, fmt.Errorf("delete %s: %w", loc, err)
	}
	return res, nil
}

// withTx runs fn in a transaction, retrying the whole transaction on
// transient errors.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return retryOp(ctx, s.retry, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() // No-op if committed

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
}

// readCurrent returns the live row at loc, if any, and the greatest
// last_modified ever stamped there (0 for a fresh location).
func readCurrent(ctx context.Context, tx *sql.Tx, loc graffiti.Location) (cur row, found bool, last int64, err error) {
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(last_modified), 0) FROM objects
		WHERE source = ? AND actor = ? AND name = ?
	`, loc.Source, loc.Actor, loc.Name).Scan(&last)
	if err != nil {
		return row{}, false, 0, fmt.Errorf("read last modified: %w", err)
	}

	cur, err = scanObject(tx.QueryRowContext(ctx, `
		SELECT `+objectColumns+` FROM objects o
		WHERE o.source = ? AND o.actor = ? AND o.name = ? AND o.tombstone = 0
	`, loc.Source, loc.Actor, loc.Name))
	if errors.Is(err, sql.ErrNoRows) {
		return row{}, false, last, nil
	}
	if err != nil {
		return row{}, false, 0, fmt.Errorf("read live object: %w", err)
	}
	return cur, true, last, nil
}

func tombstone(ctx context.Context, tx *sql.Tx, id, lastModified int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE objects SET tombstone = 1, last_modified = ? WHERE id = ?
	`, lastModified, id)
	if err != nil {
		return fmt.Errorf("tombstone object %d: %w", id, err)
	}
	return nil
}

func insert(ctx context.Context, tx *sql.Tx, obj graffiti.Object, schema graffiti.Schema) error {
	channels, err := marshalChannels(obj.Channels)
	if err != nil {
		return err
	}
	allowed, err := marshalAllowed(obj.Allowed)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO objects
		(actor, source, name, value, channels, allowed, schema, tombstone, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
	`,
		obj.Actor,
		obj.Source,
		obj.Name,
		string(obj.Value),
		channels,
		allowed,
		marshalSchema(schema),
		obj.LastModified,
	)
	if err != nil {
		return fmt.Errorf("insert object: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert object: last insert id: %w", err)
	}

	for _, ch := range obj.Channels {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO object_channels (object_id, channel) VALUES (?, ?)
		`, id, ch); err != nil {
			return fmt.Errorf("insert channel %q: %w", ch, err)
		}
	}
	return nil
}

func stamped(obj graffiti.Object, lastModified int64) graffiti.Object {
	t := obj.AsTombstone()
	t.LastModified = lastModified
	return t
}
