package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/voyaai/voyaai/internal/plan"
)

// ErrUnknownJob is returned for messages naming no known job. Such
// messages are acked so they are not redelivered.
var ErrUnknownJob = errors.New("unknown job type")

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	repairJob        *RepairJob
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	RepairJob        *RepairJob
	Logger           zerolog.Logger
}

// RepairMessage is a worker job message. A cost_repair job names one plan
// or asks for all of them.
type RepairMessage struct {
	JobType JobType `json:"job_type"`
	PlanID  string  `json:"planId,omitempty"`
	All     bool    `json:"all,omitempty"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Configure receive settings.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		repairJob:        cfg.RepairJob,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	if ack := h.process(ctx, logger, msg.Data); ack {
		msg.Ack()
		return
	}
	msg.Nack()
}

// process runs the job in data and reports whether the message should be
// acked. Malformed and unknown messages are acked; failed jobs are not.
func (h *PubSubHandler) process(ctx context.Context, logger zerolog.Logger, data []byte) bool {
	startTime := time.Now()

	var m RepairMessage
	if err := json.Unmarshal(data, &m); err != nil {
		logger.Error().Err(err).Msg("failed to parse message")
		return true
	}

	err := h.run(ctx, m)
	switch {
	case errors.Is(err, ErrUnknownJob):
		logger.Warn().Str("job_type", string(m.JobType)).Msg("unknown job type")
		return true
	case errors.Is(err, plan.ErrNotFound):
		// The plan was deleted after the message was published.
		logger.Info().Str("plan_id", m.PlanID).Msg("plan gone, dropping repair")
		return true
	case err != nil:
		logger.Error().Err(err).Str("job_type", string(m.JobType)).Msg("job failed")
		return false
	}

	logger.Info().
		Str("job_type", string(m.JobType)).
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")
	return true
}

func (h *PubSubHandler) run(ctx context.Context, m RepairMessage) error {
	switch m.JobType {
	case JobCostRepair, "":
		return h.handleCostRepair(ctx, m)
	case JobHealthCheck:
		return h.handleHealthCheck(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, m.JobType)
	}
}

func (h *PubSubHandler) handleCostRepair(ctx context.Context, m RepairMessage) error {
	switch {
	case m.All:
		result, err := h.repairJob.Run(ctx)
		if err != nil {
			return err
		}
		// Consider it successful if more than half succeeded.
		if result.Failed > result.Plans-result.Failed {
			return fmt.Errorf("too many repair failures: %d/%d", result.Failed, result.Plans)
		}
		return nil
	case m.PlanID != "":
		result, err := h.repairJob.RepairPlan(ctx, m.PlanID)
		if err != nil {
			return err
		}
		h.logger.Info().
			Str("plan_id", m.PlanID).
			Int("queued", result.Queued).
			Int("remaining", result.Remaining).
			Bool("saved", result.Saved).
			Msg("plan repaired")
		return nil
	default:
		return fmt.Errorf("%w: cost_repair needs planId or all", ErrUnknownJob)
	}
}

func (h *PubSubHandler) handleHealthCheck(ctx context.Context) error {
	h.logger.Debug().Msg("running health check")

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := h.repairJob.repo.List(ctx, plan.ListOptions{Limit: 1}); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	h.logger.Debug().Msg("health check passed")
	return nil
}
