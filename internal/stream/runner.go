package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"github.com/mohammed-shakir/raster-intake/internal/core/observability"
	"github.com/mohammed-shakir/raster-intake/internal/publish"
)

// dead-letter headers describing where the message came from
const (
	HeaderSourceTopic     = "dlq-source-topic"
	HeaderSourcePartition = "dlq-source-partition"
	HeaderSourceOffset    = "dlq-source-offset"
)

var (
	errRedeliver         = errors.New("message left uncommitted for redelivery")
	errNoDeadLetterTopic = errors.New("no dead-letter topic configured")
)

type Options struct {
	Logger   *slog.Logger
	Register prometheus.Registerer
	// DeadLetters is created from the broker list when nil.
	DeadLetters sarama.SyncProducer
}

type Runner struct {
	log      *slog.Logger
	cfg      Config
	h        Handler
	ms       *metricSet
	sem      *semaphore.Weighted
	dlq      sarama.SyncProducer
	ownsDLQ  bool
	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

func New(cfg Config, h Handler, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = 1
	}
	return &Runner{
		log:    opts.Logger,
		cfg:    cfg,
		h:      h,
		ms:     newMetricSet(opts.Register),
		sem:    semaphore.NewWeighted(int64(cfg.MaxInflight)),
		dlq:    opts.DeadLetters,
		assign: map[int32]struct{}{},
	}
}

func (r *Runner) Start(ctx context.Context) error {
	if r.h == nil {
		return errors.New("stream runner: handler is required")
	}
	if len(r.cfg.Brokers) == 0 || r.cfg.Topic == "" {
		return errors.New("stream runner: brokers and topic are required")
	}
	if r.cfg.DeadLetterTopic == "" {
		return errors.New("stream runner: dead-letter topic is required")
	}

	if r.dlq == nil {
		p, err := sarama.NewSyncProducer(r.cfg.Brokers, publish.NewProducerConfig(r.cfg.ClientID))
		if err != nil {
			return fmt.Errorf("dead-letter producer: %w", err)
		}
		r.dlq = p
		r.ownsDLQ = true
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	cfg := sarama.NewConfig()
	cfg.ClientID = r.cfg.ClientID
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = r.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = r.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = r.cfg.RebalanceTimeout
	if r.cfg.InitialOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(r.cfg.Brokers, r.cfg.GroupID, cfg)
	if err != nil {
		cancel()
		return fmt.Errorf("consumer group: %w", err)
	}

	h := r.groupHandler()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				r.log.Error("kafka consumer group close", "err", err)
			}
		}()

		for {
			if err := group.Consume(ctx, []string{r.cfg.Topic}, h); err != nil {
				observability.IncKafkaConsumerError("consume")
				r.log.Error("kafka consume error", "topic", r.cfg.Topic, "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for err := range group.Errors() {
			if errors.Is(err, errRedeliver) {
				continue
			}
			observability.IncKafkaConsumerError("group")
			r.log.Error("kafka group error", "err", err)
		}
	}()

	r.log.Info("stream runner started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers,
		"max_inflight", r.cfg.MaxInflight, "dlq", r.cfg.DeadLetterTopic)
	return nil
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	if r.ownsDLQ {
		if err := r.dlq.Close(); err != nil {
			r.log.Error("dead-letter producer close", "err", err)
		}
	}
	r.log.Info("stream runner stopped", "topic", r.cfg.Topic)
}

// Readiness reports whether the group has assigned partitions to this member.
func (r *Runner) Readiness() (ready bool, partitions []int32) {
	if !r.assigned.Load() {
		return false, nil
	}
	r.assignMu.RLock()
	defer r.assignMu.RUnlock()
	for p := range r.assign {
		partitions = append(partitions, p)
	}
	return true, partitions
}

func (r *Runner) groupHandler() *groupHandler {
	return &groupHandler{
		setup: func(sess sarama.ConsumerGroupSession) {
			claims := sess.Claims()
			r.assignMu.Lock()
			r.assigned.Store(true)
			r.assign = map[int32]struct{}{}
			for _, parts := range claims {
				for _, p := range parts {
					r.assign[p] = struct{}{}
				}
			}
			r.assignMu.Unlock()
		},
		cleanup: func(sarama.ConsumerGroupSession) {
			r.assignMu.Lock()
			r.assigned.Store(false)
			r.assign = map[int32]struct{}{}
			r.assignMu.Unlock()
		},
		process: r.handleMessage,
	}
}

// handleMessage returns nil when the offset may be committed.
func (r *Runner) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.sem.Release(1)
	r.ms.inflight.Inc()
	defer r.ms.inflight.Dec()

	if !msg.Timestamp.IsZero() {
		observability.SetConsumerLagSeconds(msg.Topic, time.Since(msg.Timestamp).Seconds())
	}

	start := time.Now()
	m := FromSarama(msg)
	out := r.h.Consume(ctx, m)
	r.ms.proc.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())
	r.ms.msgs.WithLabelValues(msg.Topic, out.String()).Inc()

	switch out {
	case Ack:
		return nil
	case DeadLetter:
		if err := r.deadLetter(m); err != nil {
			observability.IncKafkaConsumerError("dead_letter")
			return fmt.Errorf("dead-letter %s/%d@%d: %w", m.Topic, m.Partition, m.Offset, err)
		}
		return nil
	default:
		select {
		case <-time.After(r.cfg.RetryDelay):
		case <-ctx.Done():
		}
		return fmt.Errorf("%s/%d@%d: %w", m.Topic, m.Partition, m.Offset, errRedeliver)
	}
}

func (r *Runner) deadLetter(m Message) error {
	if r.dlq == nil || r.cfg.DeadLetterTopic == "" {
		return errNoDeadLetterTopic
	}
	headers := []sarama.RecordHeader{
		{Key: []byte(HeaderSourceTopic), Value: []byte(m.Topic)},
		{Key: []byte(HeaderSourcePartition), Value: []byte(strconv.Itoa(int(m.Partition)))},
		{Key: []byte(HeaderSourceOffset), Value: []byte(strconv.FormatInt(m.Offset, 10))},
	}
	for k, v := range m.Headers {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	_, _, err := r.dlq.SendMessage(&sarama.ProducerMessage{
		Topic:   r.cfg.DeadLetterTopic,
		Key:     sarama.ByteEncoder(m.Key),
		Value:   sarama.ByteEncoder(m.Value),
		Headers: headers,
	})
	return err
}

type groupHandler struct {
	setup   func(sarama.ConsumerGroupSession)
	cleanup func(sarama.ConsumerGroupSession)
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup(sess)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.cleanup != nil {
		h.cleanup(sess)
	}
	return nil
}

// ConsumeClaim stops at the first message that may not be committed; returning
// ends the session and the group resumes from the last marked offset.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := h.process(ctx, msg); err != nil {
			return err
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
