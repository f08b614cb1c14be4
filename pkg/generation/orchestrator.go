// Package generation drives the upload, mesh-generation and polling
// workflow against the external service. It owns no storage or protocol
// details beyond the meshapi contract.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mintforge/coin-preview/internal/logging"
	"github.com/mintforge/coin-preview/pkg/meshapi"
)

// ErrGenerationFailed marks a terminal server-side failure; retrying the
// same request will not help.
var ErrGenerationFailed = errors.New("mesh generation failed")

// Progress is a status event streamed to the caller while polling.
type Progress struct {
	State    meshapi.State
	Progress int
	Step     string
}

// Config holds the orchestrator settings.
type Config struct {
	// PollInterval is the delay between status polls. Zero means 1s.
	PollInterval time.Duration
	// MaxAttempts bounds status polls; transient transport errors count
	// against the same bound. Zero means 300.
	MaxAttempts int
	// Logger receives debug records; nil stays silent.
	Logger *slog.Logger
}

// DefaultConfig returns the production polling settings.
func DefaultConfig() Config {
	return Config{
		PollInterval: time.Second,
		MaxAttempts:  300,
	}
}

// Orchestrator runs finalized heightmaps through the external generation
// service.
type Orchestrator struct {
	client meshapi.Client
	cfg    Config
	log    *slog.Logger
}

// New creates an orchestrator with the default configuration.
func New(client meshapi.Client) *Orchestrator {
	return NewWithConfig(client, DefaultConfig())
}

// NewWithConfig creates an orchestrator with custom polling settings.
func NewWithConfig(client meshapi.Client, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return &Orchestrator{client: client, cfg: cfg, log: logging.Or(cfg.Logger)}
}

// Run uploads the heightmap, starts generation, polls until the task
// settles, and downloads the mesh. onProgress, if non-nil, receives every
// observed status. A server-reported failure returns ErrGenerationFailed;
// exceeding the attempt bound or a cancelled context aborts with an error.
func (o *Orchestrator) Run(ctx context.Context, imageBytes []byte, params meshapi.CoinParams, onProgress func(Progress)) ([]byte, error) {
	genID, err := o.client.Upload(ctx, imageBytes)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	o.log.Debug("heightmap uploaded", "generation_id", genID)

	taskID, err := o.client.Generate(ctx, genID, params)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	o.log.Debug("generation started", "task_id", taskID)

	if err := o.poll(ctx, genID, taskID, onProgress); err != nil {
		return nil, err
	}

	data, err := o.client.Download(ctx, genID)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	return data, nil
}

// poll watches the task until it reaches a terminal state. Transport errors
// are retried on the next tick; they consume attempts like ordinary polls
// so a dead server cannot spin forever.
func (o *Orchestrator) poll(ctx context.Context, genID, taskID string, onProgress func(Progress)) error {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		status, err := o.client.Status(ctx, genID, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.log.Debug("status poll failed", "attempt", attempt, "error", err)
		} else {
			if onProgress != nil {
				onProgress(Progress{State: status.State, Progress: status.Progress, Step: status.Step})
			}
			switch status.State {
			case meshapi.StateSuccess:
				return nil
			case meshapi.StateFailure:
				if status.Error != "" {
					return fmt.Errorf("%w: %s", ErrGenerationFailed, status.Error)
				}
				return ErrGenerationFailed
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return fmt.Errorf("generation did not finish within %d polls", o.cfg.MaxAttempts)
}
