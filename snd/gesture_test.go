package snd

import "testing"

func TestGestureGateQueuesInOrder(t *testing.T) {
	g := newGestureGate(nil)
	var ran []int
	for i := 0; i < 5; i++ {
		i := i
		g.do(func() { ran = append(ran, i) })
	}
	if len(ran) != 0 {
		t.Fatalf("actions ran before unlock: %v", ran)
	}
	if g.pendingCount() != 5 {
		t.Fatalf("pending %d, want 5", g.pendingCount())
	}

	g.unlock()
	if len(ran) != 5 {
		t.Fatalf("drained %d actions, want 5", len(ran))
	}
	for i, v := range ran {
		if v != i {
			t.Fatalf("out of order at %d: %v", i, ran)
		}
	}
	if g.pendingCount() != 0 {
		t.Fatalf("queue not discarded")
	}
}

func TestGestureGateUnlockIsMonotonic(t *testing.T) {
	unlocks := 0
	g := newGestureGate(func() { unlocks++ })
	g.unlock()
	g.unlock()
	g.unlock()
	if unlocks != 1 {
		t.Fatalf("onUnlock ran %d times", unlocks)
	}
	if !g.isUnlocked() {
		t.Fatalf("gate should stay unlocked")
	}
}

func TestGestureGateRunsImmediatelyWhenUnlocked(t *testing.T) {
	g := newGestureGate(nil)
	g.unlock()
	ran := false
	g.do(func() { ran = true })
	if !ran {
		t.Fatalf("action not run after unlock")
	}
	if g.pendingCount() != 0 {
		t.Fatalf("action queued after unlock")
	}
}
