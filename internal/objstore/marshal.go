package objstore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
)

// marshalChannels converts a channel list to JSON TEXT. A nil list is
// stored as '[]' so orphan scans can compare the column directly.
func marshalChannels(channels []string) (string, error) {
	if channels == nil {
		channels = []string{}
	}
	data, err := json.Marshal(channels)
	if err != nil {
		return "", fmt.Errorf("marshal channels: %w", err)
	}
	return string(data), nil
}

// marshalAllowed converts an access list to nullable JSON TEXT. NULL means
// public, '[]' means visible to the owner only.
func marshalAllowed(allowed []string) (sql.NullString, error) {
	if allowed == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(allowed)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal allowed: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func marshalSchema(schema graffiti.Schema) sql.NullString {
	if len(schema) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(schema), Valid: true}
}

func unmarshalStrings(data string) ([]string, error) {
	out := []string{}
	if data == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// objectColumns lists the columns scanObject reads, in order.
const objectColumns = `o.id, o.actor, o.source, o.name, o.value, o.channels, o.allowed, o.schema, o.tombstone, o.last_modified`

// row is one scanned objects row.
type row struct {
	id     int64
	object graffiti.Object
	schema graffiti.Schema
}

func scanObject(sc scanner) (row, error) {
	var (
		r        row
		value    string
		channels string
		allowed  sql.NullString
		schema   sql.NullString
		tomb     int
	)
	err := sc.Scan(
		&r.id,
		&r.object.Actor,
		&r.object.Source,
		&r.object.Name,
		&value,
		&channels,
		&allowed,
		&schema,
		&tomb,
		&r.object.LastModified,
	)
	if err != nil {
		return row{}, err
	}

	r.object.Value = json.RawMessage(value)
	r.object.Tombstone = tomb != 0

	r.object.Channels, err = unmarshalStrings(channels)
	if err != nil {
		return row{}, fmt.Errorf("unmarshal channels of object %d: %w", r.id, err)
	}
	if allowed.Valid {
		r.object.Allowed, err = unmarshalStrings(allowed.String)
		if err != nil {
			return row{}, fmt.Errorf("unmarshal allowed of object %d: %w", r.id, err)
		}
	}
	if schema.Valid {
		r.schema = graffiti.Schema(schema.String)
	}
	return r, nil
}
