// Package meshapi defines the contract with the external upload and
// mesh-generation service. The core only consumes this interface; the
// service itself (storage, the mesh tool, cleanup) lives elsewhere.
package meshapi

import (
	"context"
	"fmt"
)

// State is the lifecycle state of a remote generation task.
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateSuccess State = "success"
	StateFailure State = "failure"
)

// Terminal reports whether the task will make no further progress.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure
}

// TaskStatus is one poll result for a generation task.
type TaskStatus struct {
	State    State  `json:"status"`
	Progress int    `json:"progress"`
	Step     string `json:"step"`
	Error    string `json:"error,omitempty"`
}

// CoinParams carries the coin geometry and heightmap placement for mesh
// generation. Shape and placement fields mean the same as in the viewport:
// offsets and scale are percentages of the coin size, rotation is degrees.
type CoinParams struct {
	Shape           string  `json:"shape"`
	DiameterMM      float64 `json:"diameter_mm"`
	ThicknessMM     float64 `json:"thickness_mm"`
	ReliefDepthMM   float64 `json:"relief_depth_mm"`
	ScalePercent    float64 `json:"scale_percent"`
	OffsetXPercent  float64 `json:"offset_x_percent"`
	OffsetYPercent  float64 `json:"offset_y_percent"`
	RotationDegrees float64 `json:"rotation_degrees"`
}

// Validate checks the physical dimensions.
func (p CoinParams) Validate() error {
	if p.Shape == "" {
		return fmt.Errorf("shape must be set")
	}
	if p.DiameterMM <= 0 {
		return fmt.Errorf("diameter_mm must be positive")
	}
	if p.ThicknessMM <= 0 {
		return fmt.Errorf("thickness_mm must be positive")
	}
	if p.ReliefDepthMM <= 0 || p.ReliefDepthMM >= p.ThicknessMM {
		return fmt.Errorf("relief_depth_mm must be positive and smaller than thickness_mm")
	}
	return nil
}

// Client is the consumer-side interface to the generation service. Both the
// HTTP implementation and test fakes satisfy it.
type Client interface {
	// Upload stores a processed heightmap and returns its generation ID.
	Upload(ctx context.Context, imageBytes []byte) (generationID string, err error)
	// Generate starts mesh generation for an uploaded heightmap.
	Generate(ctx context.Context, generationID string, params CoinParams) (taskID string, err error)
	// Status polls a running task.
	Status(ctx context.Context, generationID, taskID string) (TaskStatus, error)
	// Download fetches the finished mesh.
	Download(ctx context.Context, generationID string) ([]byte, error)
}
