package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/smarteros/backend/internal/domain/messaging"
)

// DispatcherConfig tunes the per-group poll loops
type DispatcherConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	DeliveryAttempts int
	RetryDelay       time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.DeliveryAttempts <= 0 {
		c.DeliveryAttempts = 5
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	return c
}

// DeadLetterSink receives envelopes a group could not process within its
// delivery budget
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, group string, envelope *messaging.EventEnvelope, cause error) error
}

// Dispatcher drives consumer groups over the envelope log. Every group
// runs its own goroutine with its own cursor, so a slow or failing group
// delays nobody else. Delivery is at least once: the offset advances
// only after the handler acknowledges, and a crash between handling and
// advancing redelivers.
type Dispatcher struct {
	envelopes  messaging.EnvelopeRepository
	offsets    messaging.ConsumerOffsetRepository
	deadLetter DeadLetterSink
	cfg        DispatcherConfig
	logger     *zap.Logger

	mu      sync.Mutex
	groups  []*messaging.ConsumerGroup
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher; sink may be nil, in which case
// exhausted deliveries are only logged before the group moves on
func NewDispatcher(
	envelopes messaging.EnvelopeRepository,
	offsets messaging.ConsumerOffsetRepository,
	sink DeadLetterSink,
	cfg DispatcherConfig,
	log *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		envelopes:  envelopes,
		offsets:    offsets,
		deadLetter: sink,
		cfg:        cfg.withDefaults(),
		logger:     log,
	}
}

// Register adds a consumer group. Must be called before Start.
func (d *Dispatcher) Register(group *messaging.ConsumerGroup) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return fmt.Errorf("cannot register group %q after start", group.Name)
	}
	if group.Name == "" || group.Handler == nil || len(group.Patterns) == 0 {
		return fmt.Errorf("consumer group requires a name, patterns and a handler")
	}
	for _, existing := range d.groups {
		if existing.Name == group.Name {
			return fmt.Errorf("consumer group %q already registered", group.Name)
		}
	}
	d.groups = append(d.groups, group)
	return nil
}

// Start launches one poll loop per registered group
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	ctx, d.cancel = context.WithCancel(ctx)
	for _, group := range d.groups {
		d.wg.Add(1)
		go d.runGroup(ctx, group)
	}
}

// Stop cancels all poll loops and waits for them to drain
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
}

func (d *Dispatcher) runGroup(ctx context.Context, group *messaging.ConsumerGroup) {
	defer d.wg.Done()
	log := d.logger.With(zap.String("consumer_group", group.Name))

	// resume from the slowest topic cursor; anything newer than a faster
	// topic's offset is filtered per envelope below
	scanSeq, err := d.offsets.MinOffset(ctx, group.Name)
	if err != nil {
		log.Error("failed to load consumer offsets, starting from the log head", zap.Error(err))
	}

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		next, err := d.poll(ctx, group, scanSeq)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("poll failed", zap.Error(err))
		} else {
			scanSeq = next
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll delivers one batch and returns the new scan position
func (d *Dispatcher) poll(ctx context.Context, group *messaging.ConsumerGroup, scanSeq int64) (int64, error) {
	batch, err := d.envelopes.FindAfter(ctx, scanSeq, d.cfg.BatchSize)
	if err != nil {
		return scanSeq, err
	}

	for _, envelope := range batch {
		if !group.Matches(envelope.Topic) {
			scanSeq = envelope.Seq
			continue
		}
		acked, err := d.offsets.Get(ctx, group.Name, envelope.Topic)
		if err != nil {
			return scanSeq, err
		}
		if envelope.Seq <= acked {
			scanSeq = envelope.Seq
			continue
		}

		if err := d.deliver(ctx, group, envelope); err != nil {
			// budget exhausted: record the dead letter and move on so
			// the rest of the topic is not wedged behind one envelope
			d.reportDeadLetter(ctx, group, envelope, err)
		}
		if err := d.offsets.Advance(ctx, group.Name, envelope.Topic, envelope.Seq); err != nil {
			return scanSeq, err
		}
		scanSeq = envelope.Seq
	}
	return scanSeq, nil
}

// deliver attempts the handler up to the configured budget with a
// linearly growing delay between attempts
func (d *Dispatcher) deliver(ctx context.Context, group *messaging.ConsumerGroup, envelope *messaging.EventEnvelope) error {
	var err error
	for attempt := 1; attempt <= d.cfg.DeliveryAttempts; attempt++ {
		if err = group.Handler.Handle(ctx, envelope); err == nil {
			return nil
		}
		d.logger.Warn("delivery attempt failed",
			zap.String("consumer_group", group.Name),
			zap.String("topic", string(envelope.Topic)),
			zap.Int64("seq", envelope.Seq),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt == d.cfg.DeliveryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * d.cfg.RetryDelay):
		}
	}
	return err
}

func (d *Dispatcher) reportDeadLetter(ctx context.Context, group *messaging.ConsumerGroup, envelope *messaging.EventEnvelope, cause error) {
	d.logger.Error("delivery budget exhausted",
		zap.String("consumer_group", group.Name),
		zap.String("topic", string(envelope.Topic)),
		zap.Int64("seq", envelope.Seq),
		zap.String("event_id", envelope.EventID.String()),
		zap.Error(cause))
	if d.deadLetter == nil {
		return
	}
	if err := d.deadLetter.DeadLetter(ctx, group.Name, envelope, cause); err != nil {
		d.logger.Error("failed to record dead letter", zap.Error(err))
	}
}
