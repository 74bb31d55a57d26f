package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"glamtrack/internal/domain"
	"glamtrack/internal/repository"
)

// OrderRepository is a PostgreSQL implementation of repository.OrderRepository.
type OrderRepository struct {
	q Querier
}

// NewOrderRepository creates a new PostgreSQL order repository.
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{q: db}
}

// NewOrderRepositoryWithTx creates an order repository using a transaction.
func NewOrderRepositoryWithTx(tx *sql.Tx) *OrderRepository {
	return &OrderRepository{q: tx}
}

// GetByID retrieves an order with its last known positions.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `
		SELECT id, customer_id, professional_id, status,
		       customer_lat, customer_lng, customer_position_at,
		       professional_lat, professional_lng, professional_position_at,
		       updated_at
		FROM orders
		WHERE id = $1
	`

	var (
		order           domain.Order
		professionalID  sql.NullString
		customerLat     sql.NullFloat64
		customerLng     sql.NullFloat64
		customerAt      sql.NullTime
		professionalLat sql.NullFloat64
		professionalLng sql.NullFloat64
		professionalAt  sql.NullTime
	)

	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&order.OrderID,
		&order.CustomerID,
		&professionalID,
		&order.Status,
		&customerLat,
		&customerLng,
		&customerAt,
		&professionalLat,
		&professionalLng,
		&professionalAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	order.ProfessionalID = professionalID.String
	order.CustomerPoint = nullablePoint(customerLat, customerLng, customerAt)
	order.ProfessionalPoint = nullablePoint(professionalLat, professionalLng, professionalAt)

	return &order, nil
}

// UpdateStatus records a server-pushed status change.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	query := `
		UPDATE orders
		SET status = $2, updated_at = $3
		WHERE id = $1
	`

	result, err := r.q.ExecContext(ctx, query, id, status, time.Now())
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UpdateLastKnownPosition stores the latest position of one subject.
// Only the latest point is kept; no trail is accumulated.
func (r *OrderRepository) UpdateLastKnownPosition(ctx context.Context, id string, subject domain.Subject, point domain.GeoPoint) error {
	var query string
	if subject == domain.SubjectCustomer {
		query = `
			UPDATE orders
			SET customer_lat = $2, customer_lng = $3, customer_position_at = $4, updated_at = $5
			WHERE id = $1
		`
	} else {
		query = `
			UPDATE orders
			SET professional_lat = $2, professional_lng = $3, professional_position_at = $4, updated_at = $5
			WHERE id = $1
		`
	}

	result, err := r.q.ExecContext(ctx, query, id, point.Latitude, point.Longitude, point.Timestamp, time.Now())
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// nullablePoint assembles a GeoPoint from nullable columns.
func nullablePoint(lat, lng sql.NullFloat64, at sql.NullTime) *domain.GeoPoint {
	if !lat.Valid || !lng.Valid {
		return nil
	}
	point := domain.GeoPoint{Latitude: lat.Float64, Longitude: lng.Float64}
	if at.Valid {
		point.Timestamp = at.Time
	}
	return &point
}
