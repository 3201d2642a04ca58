package provider

import (
	"context"
	"sync"

	"deepchat/config"
	"deepchat/model"
)

// emitFunc hands one delta to the consumer. It returns false once the
// consumer has closed the stream; producers must stop at that point.
type emitFunc func(model.Delta) bool

// produceFunc runs one provider request, emitting non-terminal deltas.
// Its return value becomes the terminal delta: nil yields DeltaDone and an
// error yields DeltaError carrying the classified kind.
type produceFunc func(ctx context.Context, emit emitFunc) error

// chanStream adapts a producer goroutine to model.Stream.
type chanStream struct {
	ch       chan model.Delta
	cancel   context.CancelFunc
	finished chan struct{}
	closeMu  sync.Once
	cur      model.Delta
	done     bool
}

// newStream starts produce in its own goroutine and returns the consumer
// side. classify maps the producer's error to a typed failure.
func newStream(ctx context.Context, providerID string, classify func(string, error) *model.Error, produce produceFunc) model.Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &chanStream{
		ch:       make(chan model.Delta),
		cancel:   cancel,
		finished: make(chan struct{}),
	}

	emit := func(d model.Delta) bool {
		select {
		case s.ch <- d:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(s.finished)
		defer close(s.ch)

		err := produce(ctx, emit)
		if ctx.Err() != nil {
			// Closed by the consumer: nobody is listening for a terminal delta.
			return
		}
		if err != nil {
			e := classify(providerID, err)
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Provider] %s stream failed: %v", providerID, e)
			}
			emit(model.ErrorDelta(e))
			return
		}
		emit(model.DoneDelta())
	}()

	return s
}

func (s *chanStream) Next() bool {
	if s.done {
		return false
	}
	d, ok := <-s.ch
	if !ok {
		s.done = true
		return false
	}
	s.cur = d
	if d.Terminal() {
		s.done = true
	}
	return true
}

func (s *chanStream) Current() model.Delta {
	return s.cur
}

// Close cancels the request and waits for the producer to release its
// connection. It is safe to call concurrently with Next and more than once.
func (s *chanStream) Close() error {
	s.closeMu.Do(s.cancel)
	<-s.finished
	return nil
}

// errorStream is a stream that fails before any request is made.
func errorStream(err *model.Error) model.Stream {
	s := &chanStream{
		ch:       make(chan model.Delta, 1),
		cancel:   func() {},
		finished: make(chan struct{}),
	}
	s.ch <- model.ErrorDelta(err)
	close(s.ch)
	close(s.finished)
	return s
}
