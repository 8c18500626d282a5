package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpinnerStop(t *testing.T) {
	s := newSpinner("Mapping identifiers...")
	s.Start()
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	// Stop is idempotent.
	s.Stop()
	s.Stop()
}

func TestSpinnerCancelledByContext(t *testing.T) {
	tests := []struct {
		name string
		ctx  func() (context.Context, context.CancelFunc)
	}{
		{"cancel", func() (context.Context, context.CancelFunc) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			return ctx, cancel
		}},
		{"timeout", func() (context.Context, context.CancelFunc) {
			return context.WithTimeout(context.Background(), 50*time.Millisecond)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := tt.ctx()
			defer cancel()

			s := newSpinnerWithContext(ctx, "Testing genes...")
			s.Start()
			time.Sleep(100 * time.Millisecond)
			assert.True(t, s.Cancelled())
			s.Stop()
		})
	}
}

func TestSpinnerStopWithMessage(t *testing.T) {
	s := newSpinner("Fetching gene sets...")
	s.Start()
	time.Sleep(50 * time.Millisecond)
	s.StopWithSuccess("Fetched 50 gene sets")

	s = newSpinner("Fetching gene sets...")
	s.Start()
	s.StopWithError("gene set download failed")
}

func TestSpinnerUpdate(t *testing.T) {
	var buf bytes.Buffer
	s := newSpinner("Loading...")
	s.out = &buf
	s.Update("Running %s...", "fit")
	assert.Equal(t, "Running fit...", s.Message())

	s.Start()
	time.Sleep(100 * time.Millisecond)
	s.Stop()
	assert.Contains(t, buf.String(), "Running fit...")
}

func TestStageSpinnerForwards(t *testing.T) {
	s := newSpinner("")
	s.out = io.Discard
	rec := &recordingHooks{}
	h := stageSpinner{next: rec, spinner: s}

	ctx := context.Background()
	h.OnStageStart(ctx, "shrink")
	h.OnStageComplete(ctx, "shrink", 12, time.Millisecond, nil)
	h.OnWarning(ctx, "map", "offline")

	assert.Equal(t, "Running shrink...", s.Message())
	assert.Equal(t, []string{"start shrink", "complete shrink 12", "warn map offline"}, rec.events)
}

type recordingHooks struct {
	events []string
}

func (r *recordingHooks) OnStageStart(_ context.Context, stage string) {
	r.events = append(r.events, "start "+stage)
}

func (r *recordingHooks) OnStageComplete(_ context.Context, stage string, items int, _ time.Duration, _ error) {
	r.events = append(r.events, fmt.Sprintf("complete %s %d", stage, items))
}

func (r *recordingHooks) OnWarning(_ context.Context, stage, msg string) {
	r.events = append(r.events, "warn "+stage+" "+msg)
}
