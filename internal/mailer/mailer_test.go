package mailer

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []Task
	err   error
	block chan struct{}
}

func (s *fakeSender) Send(task Task) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, task)
	return s.err
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestDispatchDeliversTask(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, 2, 16)

	d.Dispatch("subject", "body", []string{"a@example.com"}, "corr-1")
	d.Close()

	if got := sender.count(); got != 1 {
		t.Fatalf("sent %d tasks, want 1", got)
	}
	task := sender.sent[0]
	if task.Subject != "subject" || task.CorrelationID != "corr-1" || len(task.Recipients) != 1 {
		t.Fatalf("task = %+v", task)
	}
}

func TestDispatchEmptyRecipientsIsNoOp(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, 1, 16)

	d.Dispatch("subject", "body", nil, "corr-2")
	d.Close()

	if got := sender.count(); got != 0 {
		t.Fatalf("sent %d tasks, want 0 for empty recipients", got)
	}
}

func TestDispatchReturnsImmediately(t *testing.T) {
	sender := &fakeSender{block: make(chan struct{})}
	d := NewDispatcher(sender, 1, 16)

	start := time.Now()
	d.Dispatch("s", "b", []string{"a@example.com"}, "corr-3")
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("Dispatch blocked for %v", elapsed)
	}

	close(sender.block)
	d.Close()
}

func TestDispatchFailureIsTerminal(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp down")}
	d := NewDispatcher(sender, 1, 16)

	d.Dispatch("s", "b", []string{"a@example.com"}, "corr-4")
	d.Close()

	// One attempt, no retry.
	if got := sender.count(); got != 1 {
		t.Fatalf("send attempts = %d, want exactly 1", got)
	}
}

func TestConcurrentDispatchesAreIndependent(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, 4, 64)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch("s", "b", []string{"a@example.com"}, "corr")
		}()
	}
	wg.Wait()
	d.Close()

	if got := sender.count(); got != 20 {
		t.Fatalf("sent %d tasks, want 20", got)
	}
}

func TestDispatchAfterCloseDoesNotPanic(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, 1, 4)
	d.Close()

	d.Dispatch("s", "b", []string{"a@example.com"}, "corr-5")

	if got := sender.count(); got != 0 {
		t.Fatalf("sent %d tasks after close, want 0", got)
	}
}

func TestQueueFullDropsTask(t *testing.T) {
	sender := &fakeSender{block: make(chan struct{})}
	d := NewDispatcher(sender, 1, 1)

	// First task occupies the worker, second fills the queue, third is
	// dropped as a logged terminal failure.
	for i := 0; i < 3; i++ {
		d.Dispatch("s", "b", []string{"a@example.com"}, "corr")
	}

	close(sender.block)
	d.Close()

	if got := sender.count(); got > 2 {
		t.Fatalf("sent %d tasks, want at most 2 with a full queue", got)
	}
}
