package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/langchou/bydgazer/internal/models"
)

// PositionRepository persists GPS fixes.
type PositionRepository struct {
	db *DB
}

func NewPositionRepository(db *DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create inserts one fix. A fix with the same car and GPS timestamp as
// an existing row is silently skipped, so re-polling a parked vehicle
// does not grow the table.
func (r *PositionRepository) Create(ctx context.Context, pos *models.Position) error {
	query := `
		INSERT INTO positions (car_id, latitude, longitude, speed, heading, battery_level, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (car_id, recorded_at) DO NOTHING
	`
	_, err := r.db.Pool.Exec(ctx, query,
		pos.CarID,
		pos.Latitude,
		pos.Longitude,
		pos.Speed,
		pos.Heading,
		pos.BatteryLevel,
		pos.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// GetLatestByCarID returns the newest fix for a vehicle.
func (r *PositionRepository) GetLatestByCarID(ctx context.Context, carID int64) (*models.Position, error) {
	query := `
		SELECT id, car_id, latitude, longitude, speed, heading, battery_level, recorded_at
		FROM positions WHERE car_id = $1 ORDER BY recorded_at DESC LIMIT 1
	`
	pos := &models.Position{}
	err := r.db.Pool.QueryRow(ctx, query, carID).Scan(
		&pos.ID,
		&pos.CarID,
		&pos.Latitude,
		&pos.Longitude,
		&pos.Speed,
		&pos.Heading,
		&pos.BatteryLevel,
		&pos.RecordedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get latest position: %w", err)
	}
	return pos, nil
}

// ListRange returns fixes within [from, to] in chronological order.
func (r *PositionRepository) ListRange(ctx context.Context, carID int64, from, to time.Time, limit int) ([]*models.Position, error) {
	if limit <= 0 || limit > 10000 {
		limit = 10000
	}
	query := `
		SELECT id, car_id, latitude, longitude, speed, heading, battery_level, recorded_at
		FROM positions
		WHERE car_id = $1 AND recorded_at >= $2 AND recorded_at <= $3
		ORDER BY recorded_at
		LIMIT $4
	`
	rows, err := r.db.Pool.Query(ctx, query, carID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		pos := &models.Position{}
		err := rows.Scan(
			&pos.ID,
			&pos.CarID,
			&pos.Latitude,
			&pos.Longitude,
			&pos.Speed,
			&pos.Heading,
			&pos.BatteryLevel,
			&pos.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, pos)
	}

	return positions, nil
}
