package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/and161185/socialkeeper/internal/errs"
	"github.com/and161185/socialkeeper/internal/model"
)

// DefaultStreamOrder is used when a stream query names no order.
const DefaultStreamOrder = "timestamp DESC"

var streamOrders = map[string]string{
	"timestamp":      "timestamp ASC",
	"timestamp asc":  "timestamp ASC",
	"timestamp desc": "timestamp DESC",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// StreamRepo implements StreamRepository over the stream_cache table.
type StreamRepo struct{ db *DB }

// NewStreamRepo constructs a stream cache repository.
func NewStreamRepo(db *DB) *StreamRepo { return &StreamRepo{db: db} }

// List returns every cached record of the UUID.
func (r *StreamRepo) List(ctx context.Context, uuid string) ([]model.StreamRecord, error) {
	const q = `SELECT item_id, timestamp, data FROM stream_cache WHERE uuid=$1 ORDER BY id`
	rows, err := r.db.Pool.Query(ctx, q, uuid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StreamRecord
	for rows.Next() {
		var rec model.StreamRecord
		if err = rows.Scan(&rec.ItemID, &rec.Timestamp, &rec.Data); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Insert adds a record.
func (r *StreamRepo) Insert(ctx context.Context, uuid string, rec model.StreamRecord) error {
	const q = `INSERT INTO stream_cache (uuid, item_id, timestamp, data) VALUES ($1, $2, $3, $4)`
	_, err := r.db.Pool.Exec(ctx, q, uuid, rec.ItemID, rec.Timestamp, rec.Data)
	return err
}

// UpdateData overwrites the payload of a cached item.
func (r *StreamRepo) UpdateData(ctx context.Context, uuid, itemID, data string) error {
	const q = `UPDATE stream_cache SET data=$3 WHERE uuid=$1 AND item_id=$2`
	_, err := r.db.Pool.Exec(ctx, q, uuid, itemID, data)
	return err
}

// Delete removes a cached item.
func (r *StreamRepo) Delete(ctx context.Context, uuid, itemID string) error {
	const q = `DELETE FROM stream_cache WHERE uuid=$1 AND item_id=$2`
	_, err := r.db.Pool.Exec(ctx, q, uuid, itemID)
	return err
}

// Query returns encoded payloads of the UUID bounded by q. StreamType restricts
// item_id to the "<singular>:" prefix.
func (r *StreamRepo) Query(ctx context.Context, uuid string, q model.StreamQuery) ([]string, error) {
	if q.Limit <= 0 {
		return nil, fmt.Errorf("%w: stream query needs a positive limit", errs.ErrPrecondition)
	}
	order, err := streamOrder(q.OrderBy)
	if err != nil {
		return nil, err
	}

	args := []any{uuid}
	var sb strings.Builder
	sb.WriteString(`SELECT data FROM stream_cache WHERE uuid=$1`)
	bind := func(clause string, v any) {
		args = append(args, v)
		sb.WriteString(clause + strconv.Itoa(len(args)))
	}
	if q.Start > 0 {
		bind(` AND timestamp >= $`, q.Start)
	}
	if q.End > 0 {
		bind(` AND timestamp <= $`, q.End)
	}
	if q.StreamType != "" {
		prefix := strings.TrimSuffix(q.StreamType, "s") + ":"
		bind(` AND item_id LIKE $`, likeEscaper.Replace(prefix)+"%")
	}
	sb.WriteString(` ORDER BY ` + order)
	bind(` LIMIT $`, q.Limit)

	rows, err := r.db.Pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var data string
		if err = rows.Scan(&data); err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, rows.Err()
}

// DeleteByUUID removes every cached record of the UUID.
func (r *StreamRepo) DeleteByUUID(ctx context.Context, uuid string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM stream_cache WHERE uuid=$1`, uuid)
	return err
}

func streamOrder(orderBy string) (string, error) {
	key := strings.ToLower(strings.Join(strings.Fields(orderBy), " "))
	if key == "" {
		return DefaultStreamOrder, nil
	}
	order, ok := streamOrders[key]
	if !ok {
		return "", fmt.Errorf("%w: unsupported stream order %q", errs.ErrPrecondition, orderBy)
	}
	return order, nil
}
