package node

import (
	"context"
	"testing"
	"time"
)

func TestControlTimer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	timer := NewRandomControlTimer()
	go timer.Run(ctx, 5*time.Millisecond)

	for i := 0; i < 3; i++ {
		select {
		case <-timer.Ticks():
		case <-time.After(time.Second):
			t.Fatalf("no tick after %d ticks", i)
		}
	}
}
