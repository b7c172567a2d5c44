// Package session owns the single live BYD client per account and
// serializes every cloud call through one mutex. The BYD cloud returns a
// conflict code (6024) when one account issues concurrent requests, so
// the lock is a correctness requirement, not an optimization.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/bydgazer/internal/api/byd"
)

// ErrAuthenticationRequired signals that credentials are no longer valid
// and the host must re-login before any further calls can succeed.
var ErrAuthenticationRequired = errors.New("authentication required")

// Factory creates a fresh client. Called lazily on first use and again
// after the gateway invalidates a broken client.
type Factory func() (byd.Client, error)

// Handler runs against the live client while the account lock is held.
type Handler func(ctx context.Context, client byd.Client) (any, error)

// CommandHandler is a Handler for remote-control commands.
type CommandHandler func(ctx context.Context, client byd.Client) (*byd.RemoteControlResult, error)

// CommandResult is the last recorded outcome for a (VIN, command) pair.
// Overwritten on every attempt, never aggregated.
type CommandResult struct {
	Command       string    `json:"command"`
	Success       bool      `json:"success"`
	ControlState  int       `json:"control_state"`
	RequestSerial string    `json:"request_serial,omitempty"`
	Error         string    `json:"error,omitempty"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	ErrorCode     int       `json:"error_code,omitempty"`
	ErrorEndpoint string    `json:"error_endpoint,omitempty"`
	RecordedAt    time.Time `json:"recorded_at"`
}

type resultKey struct {
	vin     string
	command string
}

// Gateway serializes all cloud access for one account.
type Gateway struct {
	logger  *zap.Logger
	factory Factory

	// callMu is the account-wide serialization lock. Held for the full
	// duration of a call including the one session-expiry retry.
	callMu sync.Mutex
	client byd.Client

	stateMu     sync.Mutex
	lastResults map[resultKey]*CommandResult
	unsupported map[string]map[string]struct{}
}

// NewGateway creates a gateway. No client is built until the first call.
func NewGateway(logger *zap.Logger, factory Factory) *Gateway {
	return &Gateway{
		logger:      logger,
		factory:     factory,
		lastResults: make(map[resultKey]*CommandResult),
		unsupported: make(map[string]map[string]struct{}),
	}
}

// Call executes handler against the live client under the account lock.
func (g *Gateway) Call(ctx context.Context, handler Handler) (any, error) {
	g.callMu.Lock()
	defer g.callMu.Unlock()
	return g.callLocked(ctx, handler, "", "")
}

// CallCommand executes a remote command under the account lock, recording
// the outcome (success or failure) for the (vin, command) pair.
func (g *Gateway) CallCommand(ctx context.Context, vin, command string, handler CommandHandler) (*byd.RemoteControlResult, error) {
	g.callMu.Lock()
	defer g.callMu.Unlock()

	res, err := g.callLocked(ctx, func(ctx context.Context, client byd.Client) (any, error) {
		return handler(ctx, client)
	}, vin, command)
	if res == nil {
		return nil, err
	}
	result, ok := res.(*byd.RemoteControlResult)
	if !ok {
		return nil, err
	}
	return result, err
}

func (g *Gateway) callLocked(ctx context.Context, handler Handler, vin, command string) (any, error) {
	started := time.Now()
	g.logger.Debug("cloud call started",
		zap.String("vin", shortVIN(vin)),
		zap.String("command", command))

	client, err := g.ensureClient()
	if err != nil {
		return nil, err
	}

	res, err := handler(ctx, client)
	if err == nil {
		g.recordIfCommand(vin, command, res, nil)
		g.logger.Debug("cloud call succeeded",
			zap.String("vin", shortVIN(vin)),
			zap.String("command", command),
			zap.Duration("elapsed", time.Since(started)))
		return res, nil
	}

	if byd.IsSessionExpired(err) {
		// Session invalidated elsewhere; reconnect and retry exactly once.
		g.invalidateClient(ctx)
		client, cerr := g.ensureClient()
		if cerr != nil {
			return nil, cerr
		}
		res, err = handler(ctx, client)
		if err == nil {
			g.recordIfCommand(vin, command, res, nil)
			return res, nil
		}
		if byd.IsSessionExpired(err) || byd.IsAuth(err) {
			g.recordIfCommand(vin, command, res, err)
			return res, fmt.Errorf("%w: %v", ErrAuthenticationRequired, err)
		}
	}

	g.recordIfCommand(vin, command, res, err)

	switch {
	case byd.IsAuth(err):
		return res, fmt.Errorf("%w: %v", ErrAuthenticationRequired, err)
	case byd.IsTransport(err):
		// Hard transport error. Tear the client down so the next call
		// reconnects; the scheduler retries on its next tick.
		g.invalidateClient(ctx)
		return res, err
	case byd.IsUnsupported(err):
		if vin != "" && command != "" {
			g.markCommandUnsupported(vin, command)
		}
		return res, err
	default:
		// Rate limit, control password, control rejected, generic API:
		// surface unchanged for the caller to classify.
		return res, err
	}
}

func (g *Gateway) ensureClient() (byd.Client, error) {
	if g.client != nil {
		return g.client, nil
	}
	g.logger.Debug("creating cloud client")
	client, err := g.factory()
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	g.client = client
	return client, nil
}

func (g *Gateway) invalidateClient(ctx context.Context) {
	if g.client == nil {
		return
	}
	g.logger.Debug("invalidating cloud client")
	if err := g.client.Close(ctx); err != nil {
		g.logger.Debug("client close failed", zap.Error(err))
	}
	g.client = nil
}

func (g *Gateway) recordIfCommand(vin, command string, res any, err error) {
	if vin == "" || command == "" {
		return
	}
	result, _ := res.(*byd.RemoteControlResult)
	if result == nil && err == nil {
		return
	}
	g.recordResult(vin, command, result, err)
}

func (g *Gateway) recordResult(vin, command string, result *byd.RemoteControlResult, err error) {
	entry := &CommandResult{
		Command:    command,
		RecordedAt: time.Now().UTC(),
	}
	if result != nil {
		entry.Success = result.Success
		entry.ControlState = result.ControlState
		entry.RequestSerial = result.RequestSerial
	}
	if err != nil {
		entry.Success = false
		entry.Error = err.Error()
		var re *byd.RemoteError
		if errors.As(err, &re) {
			entry.ErrorKind = re.Kind.String()
			entry.ErrorCode = re.Code
			entry.ErrorEndpoint = re.Endpoint
		}
	}

	g.stateMu.Lock()
	g.lastResults[resultKey{vin, command}] = entry
	g.stateMu.Unlock()
}

// LastCommandResult returns the last recorded outcome for a command.
func (g *Gateway) LastCommandResult(vin, command string) (*CommandResult, bool) {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	entry, ok := g.lastResults[resultKey{vin, command}]
	if !ok {
		return nil, false
	}
	copied := *entry
	return &copied, true
}

// commandPairs maps a command to itself and its paired opposite so an
// unsupported lock also hides unlock, and so on.
var commandPairs = [][2]string{
	{byd.CommandStartClimate, byd.CommandStopClimate},
	{byd.CommandCarOn, byd.CommandCarOff},
	{byd.CommandBatteryHeatOn, byd.CommandBatteryHeatOff},
	{byd.CommandSteeringWheelHeatOn, byd.CommandSteeringWheelHeatOff},
	{byd.CommandLock, byd.CommandUnlock},
}

func relatedCommands(command string) []string {
	for _, pair := range commandPairs {
		if command == pair[0] || command == pair[1] {
			return []string{pair[0], pair[1]}
		}
	}
	return []string{command}
}

func (g *Gateway) markCommandUnsupported(vin, command string) {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	set, ok := g.unsupported[vin]
	if !ok {
		set = make(map[string]struct{})
		g.unsupported[vin] = set
	}
	for _, name := range relatedCommands(command) {
		set[name] = struct{}{}
	}
	g.logger.Info("remote command marked unsupported",
		zap.String("vin", shortVIN(vin)),
		zap.String("command", command))
}

// IsCommandSupported reports whether the cloud has not (yet) rejected
// this command for the vehicle. No network call is made.
func (g *Gateway) IsCommandSupported(vin, command string) bool {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	_, unsupported := g.unsupported[vin][command]
	return !unsupported
}

// shortVIN trims a VIN for logging.
func shortVIN(vin string) string {
	if len(vin) <= 6 {
		return vin
	}
	return vin[len(vin)-6:]
}
