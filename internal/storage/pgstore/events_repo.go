package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/litperpro/litper/internal/models"
	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("not found")

type ShipmentUpdate struct {
	ShipmentID uint64

	CheckedAt time.Time

	Status    models.TrackingStatus
	StatusRaw string
	StatusAt  *time.Time

	NextCheckAt time.Time

	Events []*models.ShipmentEvent

	Error *string
}

func (s *Storage) ListShipmentEvents(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.ShipmentEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT
  id, shipment_id, status, description, location, event_time, created_at
FROM shipment_events
WHERE shipment_id = $1
ORDER BY event_time DESC
LIMIT $2 OFFSET $3
`, shipmentID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	out := []*models.ShipmentEvent{}
	for rows.Next() {
		var e models.ShipmentEvent
		if err := rows.Scan(
			&e.ID, &e.ShipmentID, &e.Status, &e.Description, &e.Location, &e.EventTime, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) ApplyShipmentUpdate(ctx context.Context, upd ShipmentUpdate) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if upd.Error != nil && *upd.Error != "" {
		_, err := tx.Exec(ctx, `
UPDATE shipments
SET
  last_checked_at = $2,
  check_fail_count = check_fail_count + 1,
  last_error = $3,
  next_check_at = $4,
  updated_at = now()
WHERE id = $1
`, upd.ShipmentID, upd.CheckedAt.UTC(), *upd.Error, upd.NextCheckAt.UTC())
		if err != nil {
			return errors.Wrap(err, "update shipment (error)")
		}
	} else {
		_, err := tx.Exec(ctx, `
UPDATE shipments
SET
  status = $3,
  status_raw = $4,
  status_at = $5,
  last_checked_at = $2,
  check_fail_count = 0,
  last_error = NULL,
  next_check_at = $6,
  updated_at = now()
WHERE id = $1
`, upd.ShipmentID, upd.CheckedAt.UTC(), upd.Status, upd.StatusRaw, upd.StatusAt, upd.NextCheckAt.UTC())
		if err != nil {
			return errors.Wrap(err, "update shipment (ok)")
		}

		for _, e := range upd.Events {
			_, err := tx.Exec(ctx, `
INSERT INTO shipment_events (
  shipment_id, status, description, location, event_time, created_at
)
VALUES ($1,$2,$3,$4,$5, now())
ON CONFLICT (shipment_id, description, event_time, location) DO NOTHING
`, upd.ShipmentID, e.Status, e.Description, e.Location, e.EventTime.UTC())
			if err != nil {
				return errors.Wrap(err, "insert shipment event")
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}
