// Package service bridges the live coordinators to persistence: vehicle
// metadata, GPS history and the remote command audit trail.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/bydgazer/internal/api/byd"
	"github.com/langchou/bydgazer/internal/command"
	"github.com/langchou/bydgazer/internal/coordinator"
	"github.com/langchou/bydgazer/internal/models"
	"github.com/langchou/bydgazer/internal/repository"
)

const writeTimeout = 5 * time.Second

// Recorder persists what the coordinators observe. It never blocks a
// polling loop: database failures are logged and dropped.
type Recorder struct {
	logger    *zap.Logger
	cars      *repository.CarRepository
	positions *repository.PositionRepository
	commands  *repository.CommandRepository

	mu      sync.Mutex
	carIDs  map[string]int64
	lastSoc map[string]float64
}

func NewRecorder(logger *zap.Logger, cars *repository.CarRepository, positions *repository.PositionRepository, commands *repository.CommandRepository) *Recorder {
	return &Recorder{
		logger:    logger,
		cars:      cars,
		positions: positions,
		commands:  commands,
		carIDs:    make(map[string]int64),
		lastSoc:   make(map[string]float64),
	}
}

// RegisterVehicles upserts the discovered vehicles and caches their row
// IDs for the listeners.
func (r *Recorder) RegisterVehicles(ctx context.Context, vehicles []byd.Vehicle) error {
	for _, v := range vehicles {
		car := &models.Car{
			VIN:         v.VIN,
			Name:        v.DisplayName(),
			Model:       v.ModelName,
			Brand:       v.BrandName,
			TboxVersion: v.TboxVersion,
			ImageURL:    v.ImageURL,
		}
		if err := r.cars.Upsert(ctx, car); err != nil {
			return err
		}
		r.mu.Lock()
		r.carIDs[v.VIN] = car.ID
		r.mu.Unlock()
	}
	return nil
}

// Attach subscribes the recorder to the account's event streams.
func (r *Recorder) Attach(account *coordinator.Account) {
	account.OnSnapshot(r.handleSnapshot)
	account.OnPosition(r.handlePosition)
}

// CarID returns the row ID for a VIN.
func (r *Recorder) CarID(vin string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.carIDs[vin]
	return id, ok
}

func (r *Recorder) handleSnapshot(vin string, snap *coordinator.Snapshot) {
	if snap == nil || snap.Realtime == nil || snap.Realtime.ElecPercent == nil {
		return
	}
	r.mu.Lock()
	r.lastSoc[vin] = *snap.Realtime.ElecPercent
	r.mu.Unlock()
}

func (r *Recorder) handlePosition(vin string, gps *byd.Gps) {
	if gps == nil {
		return
	}
	r.mu.Lock()
	carID, ok := r.carIDs[vin]
	soc, hasSoc := r.lastSoc[vin]
	r.mu.Unlock()
	if !ok {
		return
	}

	recordedAt := byd.NormalizeEpoch(gps.GpsTimestamp)
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	pos := &models.Position{
		CarID:      carID,
		Latitude:   gps.Latitude,
		Longitude:  gps.Longitude,
		Speed:      gps.Speed,
		Heading:    gps.Heading,
		RecordedAt: recordedAt,
	}
	if hasSoc {
		pos.BatteryLevel = &soc
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.positions.Create(ctx, pos); err != nil {
		r.logger.Warn("persist position failed", zap.String("vin", vin), zap.Error(err))
	}
}

// RecordCommand appends one audit row for a dispatched command.
func (r *Recorder) RecordCommand(ctx context.Context, vin, cmdName string, outcome *command.Outcome, dispatchErr error) {
	carID, ok := r.CarID(vin)
	if !ok {
		return
	}

	row := &models.RemoteCommand{
		CarID:   carID,
		Command: cmdName,
	}
	if outcome != nil {
		row.Success = outcome.Accepted
		row.SoftRejected = outcome.SoftRejected
		row.ControlState = outcome.ControlState
		row.RequestSerial = outcome.RequestSerial
	}
	if dispatchErr != nil {
		row.ErrorMessage = dispatchErr.Error()
		var re *byd.RemoteError
		if errors.As(dispatchErr, &re) {
			row.ErrorKind = re.Kind.String()
		}
	}

	if err := r.commands.Create(ctx, row); err != nil {
		r.logger.Warn("persist command failed", zap.String("vin", vin), zap.Error(err))
	}
}
