package pgstore

import (
	"context"

	"github.com/litperpro/litper/internal/broker/messages"
	"github.com/pkg/errors"
)

// InsertRescueActivity идемпотентна по id: повторная доставка из Kafka не дублирует запись.
func (s *Storage) InsertRescueActivity(ctx context.Context, a messages.RescueActivity) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO rescue_activity (
  id, tracking_number, carrier, action, from_status, to_status, priority, attempts, note, message_id, at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO NOTHING
`, a.ID, a.TrackingNumber, a.Carrier, a.Action, a.FromStatus, a.ToStatus, a.Priority, a.Attempts, a.Note, a.MessageID, a.At.UTC())
	return errors.Wrap(err, "insert rescue activity")
}

func (s *Storage) ListRescueActivity(ctx context.Context, trackingNumber string, limit int) ([]messages.RescueActivity, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
SELECT id::text, tracking_number, carrier, action, from_status, to_status, priority, attempts, note, message_id, at
FROM rescue_activity
WHERE tracking_number = $1
ORDER BY at DESC
LIMIT $2
`, trackingNumber, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select rescue activity")
	}
	defer rows.Close()

	out := []messages.RescueActivity{}
	for rows.Next() {
		var a messages.RescueActivity
		if err := rows.Scan(
			&a.ID, &a.TrackingNumber, &a.Carrier, &a.Action, &a.FromStatus, &a.ToStatus,
			&a.Priority, &a.Attempts, &a.Note, &a.MessageID, &a.At,
		); err != nil {
			return nil, errors.Wrap(err, "scan rescue activity")
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
