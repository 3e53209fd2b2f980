// Package mailer is the background notification dispatcher: a bounded
// worker pool draining a task queue. Callers get no handle to await or
// cancel; success and failure are terminal and only logged.
package mailer

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Task is one outbound notification. No retry state: a failed send is
// final.
type Task struct {
	Recipients    []string
	Subject       string
	Body          string
	CorrelationID string
}

// Sender performs the actual submission. SMTPSender in production,
// fakes in tests.
type Sender interface {
	Send(Task) error
}

type Dispatcher struct {
	sender Sender
	tasks  chan Task
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewDispatcher starts workers goroutines draining a queue of the given
// capacity.
func NewDispatcher(sender Sender, workers, queue int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{
		sender: sender,
		tasks:  make(chan Task, queue),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Dispatch enqueues a notification and returns immediately. An empty
// recipient list short-circuits with a logged no-op. A full queue drops
// the task as a logged terminal failure; the contract is best-effort.
func (d *Dispatcher) Dispatch(subject, body string, recipients []string, correlationID string) {
	if len(recipients) == 0 {
		log.Warn().Str("module", "mailer").Str("correlation_id", correlationID).Msg("no recipients, skipping")
		return
	}
	task := Task{
		Recipients:    recipients,
		Subject:       subject,
		Body:          body,
		CorrelationID: correlationID,
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		log.Error().Str("module", "mailer").Str("correlation_id", correlationID).Msg("dispatcher closed, dropping task")
		return
	}
	select {
	case d.tasks <- task:
	default:
		log.Error().Str("module", "mailer").Str("correlation_id", correlationID).Msg("queue full, dropping task")
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for task := range d.tasks {
		if err := d.sender.Send(task); err != nil {
			log.Error().Err(err).Str("module", "mailer").Str("correlation_id", task.CorrelationID).Strs("recipients", task.Recipients).Msg("send failed")
			continue
		}
		log.Info().Str("module", "mailer").Str("correlation_id", task.CorrelationID).Strs("recipients", task.Recipients).Msg("sent")
	}
}

// Close stops accepting tasks and waits for in-flight sends to finish.
// Closing a connection never reaches here; only process shutdown does.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.tasks)
	d.mu.Unlock()
	d.wg.Wait()
}
