package pgstore

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/litperpro/litper/internal/models"
	"github.com/pkg/errors"
)

const shipmentColumns = `
  id, carrier, tracking_number,
  customer_name, customer_phone, destination_city,
  status, status_raw,
  status_at, last_checked_at, next_check_at,
  check_fail_count, last_error,
  created_at, updated_at`

func scanShipment(row pgx.Row) (*models.Shipment, error) {
	var sh models.Shipment
	if err := row.Scan(
		&sh.ID, &sh.Carrier, &sh.TrackingNumber,
		&sh.CustomerName, &sh.CustomerPhone, &sh.DestinationCity,
		&sh.Status, &sh.StatusRaw,
		&sh.StatusAt, &sh.LastCheckedAt, &sh.NextCheckAt,
		&sh.CheckFailCount, &sh.LastError,
		&sh.CreatedAt, &sh.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &sh, nil
}

// CreateOrGetShipments добавляет guías в лист наблюдения. Для уже существующих
// обновляются только непустые контактные данные.
func (s *Storage) CreateOrGetShipments(ctx context.Context, items []models.ShipmentCreateInput) ([]*models.Shipment, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]uint64, 0, len(items))
	for _, it := range items {
		var id uint64
		err := tx.QueryRow(ctx, `
INSERT INTO shipments (
  carrier, tracking_number, customer_name, customer_phone, destination_city,
  status, status_raw, next_check_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,'',$7,$7,$7)
ON CONFLICT (carrier, tracking_number)
DO UPDATE SET
  customer_name = COALESCE(NULLIF(EXCLUDED.customer_name, ''), shipments.customer_name),
  customer_phone = COALESCE(NULLIF(EXCLUDED.customer_phone, ''), shipments.customer_phone),
  destination_city = COALESCE(NULLIF(EXCLUDED.destination_city, ''), shipments.destination_city),
  updated_at = shipments.updated_at
RETURNING id
`, it.Carrier, strings.ToUpper(strings.TrimSpace(it.TrackingNumber)),
			it.CustomerName, it.CustomerPhone, it.DestinationCity,
			models.TrackingStatusUnknown, now).Scan(&id)
		if err != nil {
			return nil, errors.Wrap(err, "insert shipment")
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	return s.GetShipmentsByIDs(ctx, ids)
}

func (s *Storage) GetShipmentsByIDs(ctx context.Context, ids []uint64) ([]*models.Shipment, error) {
	if len(ids) == 0 {
		return []*models.Shipment{}, nil
	}

	rows, err := s.db.Query(ctx, `SELECT`+shipmentColumns+` FROM shipments WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "select shipments")
	}
	defer rows.Close()

	out := make([]*models.Shipment, 0, len(ids))
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan shipment")
		}
		out = append(out, sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// FindShipment returns nil without error when the guía is not on the watch-list.
func (s *Storage) FindShipment(ctx context.Context, carrier models.CarrierType, trackingNumber string) (*models.Shipment, error) {
	row := s.db.QueryRow(ctx, `SELECT`+shipmentColumns+` FROM shipments WHERE carrier = $1 AND tracking_number = $2`,
		carrier, strings.ToUpper(strings.TrimSpace(trackingNumber)))
	sh, err := scanShipment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find shipment")
	}
	return sh, nil
}

func (s *Storage) RefreshShipment(ctx context.Context, shipmentID uint64) error {
	tag, err := s.db.Exec(ctx, `UPDATE shipments SET next_check_at = now(), updated_at = now() WHERE id = $1`, shipmentID)
	if err != nil {
		return errors.Wrap(err, "refresh shipment")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimDueShipments выбирает пачку отправлений, готовых к проверке, и "бронирует" их,
// чтобы они не попадали в повторную выборку, пока воркер их обрабатывает.
// Использует SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Storage) ClaimDueShipments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Shipment, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `SELECT`+shipmentColumns+`
FROM shipments
WHERE next_check_at <= $1
  AND status <> ALL($2)
ORDER BY next_check_at ASC
LIMIT $3
FOR UPDATE SKIP LOCKED
`, now.UTC(), []string{
		string(models.TrackingStatusDelivered),
		string(models.TrackingStatusReturned),
		string(models.TrackingStatusCancelled),
	}, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due shipments")
	}

	var picked []*models.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan due shipment")
		}
		picked = append(picked, sh)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, sh := range picked {
		_, err := tx.Exec(ctx, `UPDATE shipments SET next_check_at = $2, updated_at = now() WHERE id = $1`, sh.ID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease shipment")
		}
		sh.NextCheckAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}
