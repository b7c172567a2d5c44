package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/langchou/bydgazer/internal/models"
)

// CarRepository persists discovered vehicles.
type CarRepository struct {
	db *DB
}

func NewCarRepository(db *DB) *CarRepository {
	return &CarRepository{db: db}
}

// Upsert inserts the vehicle or refreshes its metadata, keyed by VIN.
func (r *CarRepository) Upsert(ctx context.Context, car *models.Car) error {
	query := `
		INSERT INTO cars (vin, name, model, brand, tbox_version, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (vin) DO UPDATE SET
			name = EXCLUDED.name,
			model = EXCLUDED.model,
			brand = EXCLUDED.brand,
			tbox_version = EXCLUDED.tbox_version,
			image_url = EXCLUDED.image_url,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`
	now := time.Now()
	err := r.db.Pool.QueryRow(ctx, query,
		car.VIN,
		car.Name,
		car.Model,
		car.Brand,
		car.TboxVersion,
		car.ImageURL,
		now,
		now,
	).Scan(&car.ID, &car.CreatedAt)

	if err != nil {
		return fmt.Errorf("upsert car: %w", err)
	}

	car.UpdatedAt = now
	return nil
}

// GetByVIN returns one vehicle.
func (r *CarRepository) GetByVIN(ctx context.Context, vin string) (*models.Car, error) {
	query := `
		SELECT id, vin, name, model, brand, tbox_version, image_url, created_at, updated_at
		FROM cars WHERE vin = $1
	`
	car := &models.Car{}
	err := r.db.Pool.QueryRow(ctx, query, vin).Scan(
		&car.ID,
		&car.VIN,
		&car.Name,
		&car.Model,
		&car.Brand,
		&car.TboxVersion,
		&car.ImageURL,
		&car.CreatedAt,
		&car.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get car by vin: %w", err)
	}
	return car, nil
}

// List returns all known vehicles.
func (r *CarRepository) List(ctx context.Context) ([]*models.Car, error) {
	query := `
		SELECT id, vin, name, model, brand, tbox_version, image_url, created_at, updated_at
		FROM cars ORDER BY id
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list cars: %w", err)
	}
	defer rows.Close()

	var cars []*models.Car
	for rows.Next() {
		car := &models.Car{}
		err := rows.Scan(
			&car.ID,
			&car.VIN,
			&car.Name,
			&car.Model,
			&car.Brand,
			&car.TboxVersion,
			&car.ImageURL,
			&car.CreatedAt,
			&car.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan car: %w", err)
		}
		cars = append(cars, car)
	}

	return cars, nil
}

// UpdateName stores a user-chosen alias after a successful cloud rename.
func (r *CarRepository) UpdateName(ctx context.Context, vin, name string) error {
	query := `UPDATE cars SET name = $1, updated_at = $2 WHERE vin = $3`
	_, err := r.db.Pool.Exec(ctx, query, name, time.Now(), vin)
	if err != nil {
		return fmt.Errorf("update car name: %w", err)
	}
	return nil
}
