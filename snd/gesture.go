package snd

import "sync"

// gestureGate defers sound-producing work until the platform's autoplay
// policy has been satisfied by a qualifying user interaction. The gate has
// exactly two states and never re-locks: once a trusted gesture arrives,
// queued actions run in FIFO order and the queue is discarded for good.
//
// Deciding what counts as a trusted gesture is the adapter's job (the demo
// shell forwards real input events only); programmatic calls must not
// reach Unlock.
type gestureGate struct {
	mu       sync.Mutex
	unlocked bool
	pending  []func()
	onUnlock func()
}

func newGestureGate(onUnlock func()) *gestureGate {
	return &gestureGate{onUnlock: onUnlock}
}

func (g *gestureGate) isUnlocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unlocked
}

// do runs the action immediately when unlocked, otherwise queues it.
func (g *gestureGate) do(action func()) {
	g.mu.Lock()
	if !g.unlocked {
		g.pending = append(g.pending, action)
		n := len(g.pending)
		g.mu.Unlock()
		logDebug("gesture gate locked, queued action (%d pending)", n)
		return
	}
	g.mu.Unlock()
	action()
}

// unlock transitions to the terminal unlocked state and drains the queue
// in original call order.
func (g *gestureGate) unlock() {
	g.mu.Lock()
	if g.unlocked {
		g.mu.Unlock()
		return
	}
	g.unlocked = true
	pending := g.pending
	g.pending = nil
	g.mu.Unlock()

	if g.onUnlock != nil {
		g.onUnlock()
	}
	for _, action := range pending {
		action()
	}
}

func (g *gestureGate) pendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}
