package stopper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGoRunsAndStopWaits(t *testing.T) {
	s := WithContext(context.Background())
	ran := make(chan struct{})
	s.Go(func() error {
		<-s.Stopping()
		close(ran)
		return nil
	})

	s.Stop(time.Second)

	select {
	case <-ran:
	default:
		t.Fatal("goroutine did not observe Stopping before Stop returned")
	}
}

func TestErrorCancelsContext(t *testing.T) {
	s := WithContext(context.Background())
	s.Go(func() error { return assert.AnError })

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("expected context to be canceled after goroutine error")
	}
}
