package repository

import (
	"context"
	"fmt"

	"github.com/langchou/bydgazer/internal/models"
)

// CommandRepository keeps an audit trail of remote command attempts.
type CommandRepository struct {
	db *DB
}

func NewCommandRepository(db *DB) *CommandRepository {
	return &CommandRepository{db: db}
}

// Create inserts one attempt.
func (r *CommandRepository) Create(ctx context.Context, cmd *models.RemoteCommand) error {
	query := `
		INSERT INTO remote_commands (car_id, command, success, soft_rejected, control_state, request_serial, error_kind, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := r.db.Pool.QueryRow(ctx, query,
		cmd.CarID,
		cmd.Command,
		cmd.Success,
		cmd.SoftRejected,
		cmd.ControlState,
		cmd.RequestSerial,
		cmd.ErrorKind,
		cmd.ErrorMessage,
	).Scan(&cmd.ID, &cmd.CreatedAt)

	if err != nil {
		return fmt.Errorf("insert remote command: %w", err)
	}
	return nil
}

// ListRecent returns the newest attempts for a vehicle.
func (r *CommandRepository) ListRecent(ctx context.Context, carID int64, limit int) ([]*models.RemoteCommand, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `
		SELECT id, car_id, command, success, soft_rejected, control_state, request_serial, error_kind, error_message, created_at
		FROM remote_commands WHERE car_id = $1 ORDER BY created_at DESC LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, carID, limit)
	if err != nil {
		return nil, fmt.Errorf("list remote commands: %w", err)
	}
	defer rows.Close()

	var commands []*models.RemoteCommand
	for rows.Next() {
		cmd := &models.RemoteCommand{}
		err := rows.Scan(
			&cmd.ID,
			&cmd.CarID,
			&cmd.Command,
			&cmd.Success,
			&cmd.SoftRejected,
			&cmd.ControlState,
			&cmd.RequestSerial,
			&cmd.ErrorKind,
			&cmd.ErrorMessage,
			&cmd.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan remote command: %w", err)
		}
		commands = append(commands, cmd)
	}

	return commands, nil
}
