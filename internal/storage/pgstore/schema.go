package pgstore

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS shipments (
  id BIGSERIAL PRIMARY KEY,
  carrier TEXT NOT NULL,
  tracking_number TEXT NOT NULL,
  customer_name TEXT NOT NULL DEFAULT '',
  customer_phone TEXT NOT NULL DEFAULT '',
  destination_city TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  status_raw TEXT NOT NULL,
  status_at TIMESTAMPTZ NULL,
  last_checked_at TIMESTAMPTZ NULL,
  next_check_at TIMESTAMPTZ NOT NULL,
  check_fail_count INT NOT NULL DEFAULT 0,
  last_error TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (carrier, tracking_number)
)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_next_check_at ON shipments(next_check_at)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_tracking_number ON shipments(tracking_number)`,
		`
CREATE TABLE IF NOT EXISTS shipment_events (
  id BIGSERIAL PRIMARY KEY,
  shipment_id BIGINT NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  location TEXT NOT NULL DEFAULT '',
  event_time TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_shipment_events_shipment_id_event_time ON shipment_events(shipment_id, event_time DESC)`,
		// Перевозчики повторяют всю историю в каждом ответе, поэтому события дедуплицируются.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_shipment_events_dedup ON shipment_events(shipment_id, description, event_time, location)`,
		`
CREATE TABLE IF NOT EXISTS rescue_activity (
  id UUID PRIMARY KEY,
  tracking_number TEXT NOT NULL,
  carrier TEXT NOT NULL,
  action TEXT NOT NULL,
  from_status TEXT NOT NULL DEFAULT '',
  to_status TEXT NOT NULL,
  priority TEXT NOT NULL,
  attempts INT NOT NULL,
  note TEXT NOT NULL DEFAULT '',
  message_id TEXT NOT NULL DEFAULT '',
  at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_rescue_activity_tracking_number_at ON rescue_activity(tracking_number, at DESC)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
