package generation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mintforge/coin-preview/pkg/meshapi"
)

// fakeClient scripts the service side of the workflow.
type fakeClient struct {
	uploads    int
	statuses   []meshapi.TaskStatus
	statusErrs []error
	calls      int
	meshData   []byte
	uploadErr  error
}

func (f *fakeClient) Upload(ctx context.Context, imageBytes []byte) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads++
	return "gen-1", nil
}

func (f *fakeClient) Generate(ctx context.Context, generationID string, params meshapi.CoinParams) (string, error) {
	return "task-1", nil
}

func (f *fakeClient) Status(ctx context.Context, generationID, taskID string) (meshapi.TaskStatus, error) {
	i := f.calls
	f.calls++
	if i < len(f.statusErrs) && f.statusErrs[i] != nil {
		return meshapi.TaskStatus{}, f.statusErrs[i]
	}
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	return f.statuses[i], nil
}

func (f *fakeClient) Download(ctx context.Context, generationID string) ([]byte, error) {
	return f.meshData, nil
}

func fastConfig() Config {
	return Config{PollInterval: time.Millisecond, MaxAttempts: 10}
}

func TestRunSuccess(t *testing.T) {
	client := &fakeClient{
		statuses: []meshapi.TaskStatus{
			{State: meshapi.StatePending, Progress: 0, Step: "queued"},
			{State: meshapi.StateRunning, Progress: 50, Step: "meshing"},
			{State: meshapi.StateSuccess, Progress: 100, Step: "done"},
		},
		meshData: []byte("stl"),
	}
	o := NewWithConfig(client, fastConfig())

	var events []Progress
	data, err := o.Run(context.Background(), []byte("png"), meshapi.CoinParams{}, func(p Progress) {
		events = append(events, p)
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if string(data) != "stl" {
		t.Errorf("Downloaded %q, want stl", data)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 progress events, got %d", len(events))
	}
	if events[1].Step != "meshing" || events[1].Progress != 50 {
		t.Errorf("Second event = %+v, want meshing at 50%%", events[1])
	}
}

func TestRunServerFailureIsTerminal(t *testing.T) {
	client := &fakeClient{
		statuses: []meshapi.TaskStatus{
			{State: meshapi.StateRunning, Progress: 10},
			{State: meshapi.StateFailure, Error: "tool crashed"},
		},
	}
	o := NewWithConfig(client, fastConfig())

	_, err := o.Run(context.Background(), []byte("png"), meshapi.CoinParams{}, nil)
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("Expected ErrGenerationFailed, got %v", err)
	}
	// No retry after a terminal failure.
	if client.calls != 2 {
		t.Errorf("Expected polling to stop after failure, got %d polls", client.calls)
	}
}

func TestRunRetriesTransportErrors(t *testing.T) {
	client := &fakeClient{
		statusErrs: []error{
			fmt.Errorf("connection refused"),
			fmt.Errorf("connection refused"),
		},
		statuses: []meshapi.TaskStatus{
			{}, {},
			{State: meshapi.StateSuccess, Progress: 100},
		},
		meshData: []byte("stl"),
	}
	o := NewWithConfig(client, fastConfig())

	if _, err := o.Run(context.Background(), []byte("png"), meshapi.CoinParams{}, nil); err != nil {
		t.Fatalf("Run should survive transient errors, got %v", err)
	}
	if client.calls != 3 {
		t.Errorf("Expected 3 polls, got %d", client.calls)
	}
}

func TestRunExhaustsAttempts(t *testing.T) {
	client := &fakeClient{
		statuses: []meshapi.TaskStatus{{State: meshapi.StateRunning, Progress: 1}},
	}
	o := NewWithConfig(client, Config{PollInterval: time.Millisecond, MaxAttempts: 3})

	_, err := o.Run(context.Background(), []byte("png"), meshapi.CoinParams{}, nil)
	if err == nil {
		t.Fatal("Expected error after exhausting poll attempts")
	}
	if client.calls != 3 {
		t.Errorf("Expected exactly 3 polls, got %d", client.calls)
	}
}

func TestRunContextCancelled(t *testing.T) {
	client := &fakeClient{
		statuses: []meshapi.TaskStatus{{State: meshapi.StateRunning}},
	}
	o := NewWithConfig(client, Config{PollInterval: time.Hour, MaxAttempts: 10})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := o.Run(ctx, []byte("png"), meshapi.CoinParams{}, nil)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not abort on cancellation")
	}
}

func TestRunUploadError(t *testing.T) {
	client := &fakeClient{uploadErr: fmt.Errorf("disk full")}
	o := NewWithConfig(client, fastConfig())

	if _, err := o.Run(context.Background(), []byte("png"), meshapi.CoinParams{}, nil); err == nil {
		t.Error("Expected upload error to propagate")
	}
}
