package tracker

import (
	"testing"

	"github.com/loykin/craftd/internal/status"
)

func TestArmSetsOptimisticPending(t *testing.T) {
	tr := New()
	tr.Arm(1)
	ov, ok := tr.Override(1)
	if !ok || ov != status.OverridePending {
		t.Fatalf("expected pending override after Arm, got %q ok=%v", ov, ok)
	}
	if tr.LastExit(1) != nil {
		t.Fatalf("expected no exit code after Arm")
	}
}

func TestClearFencesLateReports(t *testing.T) {
	tr := New()
	tr.Arm(7)
	if !tr.SetOverride(7, status.OverrideRunning) {
		t.Fatalf("expected override accepted while live")
	}
	tr.Clear(7)
	if _, ok := tr.Override(7); ok {
		t.Fatalf("expected override absent after Clear")
	}
	// late plugin report must not resurrect the status
	if tr.SetOverride(7, status.OverrideRunning) {
		t.Fatalf("expected fenced id to reject late override")
	}
	if _, ok := tr.Override(7); ok {
		t.Fatalf("override must stay absent after late report")
	}
	// the next start releases the fence
	tr.Arm(7)
	if !tr.SetOverride(7, status.OverrideRunning) {
		t.Fatalf("expected override accepted after re-arm")
	}
}

func TestExitCodeSurvivesClear(t *testing.T) {
	tr := New()
	tr.Arm(3)
	tr.SetLastExit(3, 1)
	tr.Clear(3)
	code := tr.LastExit(3)
	if code == nil || *code != 1 {
		t.Fatalf("expected exit code 1 to persist after Clear, got %v", code)
	}
	// a late stop report may still refine the code
	tr.SetLastExit(3, 2)
	if c := tr.LastExit(3); c == nil || *c != 2 {
		t.Fatalf("expected late exit refinement, got %v", c)
	}
	// the next run starts from a clean slate
	tr.Arm(3)
	if tr.LastExit(3) != nil {
		t.Fatalf("expected exit code reset on Arm")
	}
}
