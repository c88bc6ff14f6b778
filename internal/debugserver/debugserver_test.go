package debugserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chazu/vo/internal/diag"
	"github.com/chazu/vo/internal/fiber"
	"github.com/chazu/vo/internal/gc"
)

type fakeSource struct {
	stats   gc.Stats
	fibers  []fiber.FiberSnapshot
}

func (f *fakeSource) GCStats() gc.Stats                    { return f.stats }
func (f *fakeSource) FiberSnapshot() []fiber.FiberSnapshot { return f.fibers }

func TestHandleStatsServesJSON(t *testing.T) {
	src := &fakeSource{
		stats:  gc.Stats{Allocs: 3, CyclesCompleted: 1},
		fibers: []fiber.FiberSnapshot{{ID: "f1", Status: fiber.StatusRunning, IsMain: true, Depth: 2}},
	}
	s := New(src)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	s.handleStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.GC.Allocs != 3 {
		t.Errorf("GC.Allocs = %d, want 3", got.GC.Allocs)
	}
	if len(got.Fibers) != 1 || got.Fibers[0].ID != "f1" {
		t.Errorf("Fibers = %+v", got.Fibers)
	}
}

func TestEmitWithNoClientsIsNoop(t *testing.T) {
	s := New(&fakeSource{})
	// Must not panic or block with zero connected clients.
	s.Emit(diag.Diagnostic{Kind: diag.Panic, Msg: "boom"})
}
