package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/waseemanjum-be/NotifyHub/internal/domain"
	"github.com/waseemanjum-be/NotifyHub/internal/observability"
	"github.com/waseemanjum-be/NotifyHub/internal/provider"
	"github.com/waseemanjum-be/NotifyHub/internal/ratelimit"
	"github.com/waseemanjum-be/NotifyHub/internal/repository"
	"github.com/waseemanjum-be/NotifyHub/internal/retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	minWorkerConcurrency = 1
	minWorkerBatchSize   = 1
	minPollInterval      = 50 * time.Millisecond
	minLeaseDuration     = time.Second
)

// WorkerOptions tunes the claim loops.
type WorkerOptions struct {
	Concurrency  int
	BatchSize    int
	PollInterval time.Duration
	Lease        time.Duration
	Channels     []domain.Channel
	// TokenBase prefixes per-loop claim tokens. Defaults to a random value
	// so two worker processes never share a token.
	TokenBase string
}

type WorkerService struct {
	deliveries  repository.DeliveryRepository
	lookups     repository.LookupRepository
	providers   *provider.Registry
	rateLimiter ratelimit.RateLimiter
	policy      retry.Policy
	logger      *zap.Logger
	metrics     *observability.Metrics
	opts        WorkerOptions
	now         func() time.Time
}

func NewWorkerService(
	deliveries repository.DeliveryRepository,
	lookups repository.LookupRepository,
	providers *provider.Registry,
	rateLimiter ratelimit.RateLimiter,
	policy retry.Policy,
	opts WorkerOptions,
	logger *zap.Logger,
) (*WorkerService, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if lookups == nil {
		return nil, fmt.Errorf("lookup repository is required")
	}
	if providers == nil {
		return nil, fmt.Errorf("provider registry is required")
	}
	if rateLimiter == nil {
		rateLimiter = ratelimit.NoopLimiter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if opts.Concurrency < minWorkerConcurrency {
		opts.Concurrency = minWorkerConcurrency
	}
	if opts.BatchSize < minWorkerBatchSize {
		opts.BatchSize = minWorkerBatchSize
	}
	if opts.PollInterval < minPollInterval {
		opts.PollInterval = minPollInterval
	}
	if opts.Lease < minLeaseDuration {
		opts.Lease = minLeaseDuration
	}
	if len(opts.Channels) == 0 {
		opts.Channels = providers.Channels()
	}
	if strings.TrimSpace(opts.TokenBase) == "" {
		opts.TokenBase = uuid.NewString()
	}

	for _, channel := range opts.Channels {
		if _, err := providers.ForChannel(channel); err != nil {
			return nil, err
		}
	}

	return &WorkerService{
		deliveries:  deliveries,
		lookups:     lookups,
		providers:   providers,
		rateLimiter: rateLimiter,
		policy:      policy,
		logger:      logger,
		opts:        opts,
		now:         time.Now,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start runs the claim loops until context cancellation. Each loop claims a
// batch of due delivery records under its own token, processes them in order,
// and idles for the poll interval when nothing is due.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.opts.Concurrency; i++ {
		workerToken := fmt.Sprintf("%s-%d", s.opts.TokenBase, i+1)

		g.Go(func() error {
			s.logger.Info("worker loop started",
				zap.String("workerToken", workerToken),
			)
			err := s.runLoop(groupCtx, workerToken)
			s.logger.Info("worker loop stopped",
				zap.String("workerToken", workerToken),
				zap.Error(err),
			)
			return err
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *WorkerService) runLoop(ctx context.Context, workerToken string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		claimed, err := s.deliveries.ClaimDue(ctx, s.now().UTC(), workerToken, s.opts.Lease, s.opts.BatchSize, s.opts.Channels)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("claim batch failed",
				zap.String("workerToken", workerToken),
				zap.Error(err),
			)
			if err := sleepWithContext(ctx, s.opts.PollInterval); err != nil {
				return err
			}
			continue
		}

		if s.metrics != nil {
			perChannel := make(map[domain.Channel]int, len(s.opts.Channels))
			for _, record := range claimed {
				perChannel[record.Channel]++
			}
			for channel, count := range perChannel {
				s.metrics.AddDeliveriesClaimed(channel.String(), count)
			}
		}

		for i := range claimed {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.processRecord(ctx, workerToken, &claimed[i]); err != nil {
				s.logger.Error("delivery processing failed, lease will expire",
					zap.String("workerToken", workerToken),
					zap.String("deliveryId", claimed[i].ID),
					zap.String("channel", claimed[i].Channel.String()),
					zap.Error(err),
				)
			}
		}

		if len(claimed) == 0 {
			if err := sleepWithContext(ctx, s.opts.PollInterval); err != nil {
				return err
			}
		}
	}
}

// processRecord runs one provider attempt for a claimed record and advances
// its state. Returning an error leaves the record claimed; the lease expiry
// makes it reclaimable, so errors here never lose work.
func (s *WorkerService) processRecord(ctx context.Context, workerToken string, record *domain.DeliveryRecord) error {
	channelName := strings.ToLower(record.Channel.String())
	if s.metrics != nil {
		s.metrics.IncWorkerInFlight(channelName)
		defer s.metrics.DecWorkerInFlight(channelName)
	}

	sender, err := s.providers.ForChannel(record.Channel)
	if err != nil {
		return err
	}

	input, lookupErr := s.buildSendInput(ctx, record)
	if lookupErr != nil {
		if errors.Is(lookupErr, domain.ErrNotFound) {
			// A dangling user or template reference cannot heal on retry.
			return s.failWithoutSend(ctx, workerToken, record, lookupErr)
		}
		return lookupErr
	}

	if err := s.rateLimiter.Wait(ctx, channelName); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	attemptNumber := record.AttemptCount + 1
	sendStart := s.now()
	response, sendErr := sender.Send(ctx, *input)
	latency := s.now().Sub(sendStart)
	if s.metrics != nil {
		s.metrics.ObserveSendDuration(channelName, latency)
	}

	if sendErr == nil {
		return s.completeSend(ctx, workerToken, record, attemptNumber, response, latency)
	}
	return s.handleSendFailure(ctx, workerToken, record, attemptNumber, response, sendErr, latency)
}

func (s *WorkerService) completeSend(
	ctx context.Context,
	workerToken string,
	record *domain.DeliveryRecord,
	attemptNumber int,
	response *provider.Response,
	latency time.Duration,
) error {
	attempt := buildAttempt(record.ID, attemptNumber, domain.OutcomeSuccess, response, nil, latency, s.now().UTC())
	if err := s.recordAttempt(ctx, workerToken, record, attempt); err != nil {
		return err
	}

	if response != nil && strings.TrimSpace(response.MessageID) != "" {
		err := s.deliveries.SetProviderMessageID(ctx, record.ID, workerToken, response.MessageID)
		if err != nil && !errors.Is(err, domain.ErrLeaseLost) {
			return fmt.Errorf("failed to set provider message id: %w", err)
		}
	}

	if err := s.advanceClaimed(ctx, record, domain.StatusSent, nil); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.IncDeliverySent(strings.ToLower(record.Channel.String()))
	}
	return nil
}

func (s *WorkerService) handleSendFailure(
	ctx context.Context,
	workerToken string,
	record *domain.DeliveryRecord,
	attemptNumber int,
	response *provider.Response,
	sendErr error,
	latency time.Duration,
) error {
	channelName := strings.ToLower(record.Channel.String())
	retryable := provider.IsRetryable(sendErr)
	exhausted := s.policy.IsExhausted(attemptNumber)

	outcome := domain.OutcomeTerminalFailure
	switch {
	case retryable && !exhausted:
		outcome = domain.OutcomeRetryableFailure
	case retryable && exhausted:
		outcome = domain.OutcomeRetryExhausted
	}

	attempt := buildAttempt(record.ID, attemptNumber, outcome, response, sendErr, latency, s.now().UTC())
	if err := s.recordAttempt(ctx, workerToken, record, attempt); err != nil {
		return err
	}

	if outcome == domain.OutcomeRetryableFailure {
		next := s.policy.NextEligible(s.now().UTC(), attemptNumber)
		if err := s.advanceClaimed(ctx, record, domain.StatusRetrying, &next); err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.IncRetryScheduled(channelName)
		}
		return nil
	}

	if err := s.advanceClaimed(ctx, record, domain.StatusFailed, nil); err != nil {
		return err
	}
	if s.metrics != nil {
		reason := "terminal_failure"
		if outcome == domain.OutcomeRetryExhausted {
			reason = "retry_exhausted"
		}
		s.metrics.IncDeliveryFailed(channelName, reason)
	}
	return nil
}

// failWithoutSend records a terminal attempt for a record that can never be
// sent, without calling the provider.
func (s *WorkerService) failWithoutSend(ctx context.Context, workerToken string, record *domain.DeliveryRecord, cause error) error {
	attemptNumber := record.AttemptCount + 1
	attempt := buildAttempt(record.ID, attemptNumber, domain.OutcomeTerminalFailure, nil, cause, 0, s.now().UTC())
	if err := s.recordAttempt(ctx, workerToken, record, attempt); err != nil {
		return err
	}
	if err := s.advanceClaimed(ctx, record, domain.StatusFailed, nil); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.IncDeliveryFailed(strings.ToLower(record.Channel.String()), "terminal_failure")
	}
	return nil
}

// recordAttempt persists the attempt under the worker's lease. A lost lease
// means another worker owns the record now, so the attempt is dropped and
// the record left alone.
func (s *WorkerService) recordAttempt(ctx context.Context, workerToken string, record *domain.DeliveryRecord, attempt *domain.DeliveryAttempt) error {
	err := s.deliveries.RecordAttempt(ctx, workerToken, attempt)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrLeaseLost) {
		s.logger.Warn("lease lost before recording attempt, skipping",
			zap.String("workerToken", workerToken),
			zap.String("deliveryId", record.ID),
		)
		return errLeaseSkip
	}
	return fmt.Errorf("failed to record attempt: %w", err)
}

// errLeaseSkip marks a record abandoned after a lost lease. It is logged at
// the loop level like any processing error but carries no failure semantics.
var errLeaseSkip = errors.New("delivery lease lost")

func (s *WorkerService) advanceClaimed(ctx context.Context, record *domain.DeliveryRecord, to domain.DeliveryStatus, nextEligibleAt *time.Time) error {
	err := s.deliveries.AdvanceState(ctx, record.ID, record.Status, to, nextEligibleAt, s.now().UTC())
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrStaleTransition) {
		s.logger.Warn("delivery state moved underneath worker, skipping",
			zap.String("deliveryId", record.ID),
			zap.String("from", record.Status.String()),
			zap.String("to", to.String()),
		)
		return nil
	}
	return fmt.Errorf("failed to advance delivery state: %w", err)
}

func (s *WorkerService) buildSendInput(ctx context.Context, record *domain.DeliveryRecord) (*provider.SendInput, error) {
	notification, err := s.lookups.GetNotification(ctx, record.NotificationID)
	if err != nil {
		return nil, err
	}

	user, err := s.lookups.GetUser(ctx, notification.UserID)
	if err != nil {
		return nil, err
	}

	template, err := s.lookups.GetTemplate(ctx, notification.TemplateID)
	if err != nil {
		return nil, err
	}

	return &provider.SendInput{
		DeliveryID:     record.ID,
		NotificationID: notification.ID,
		Channel:        record.Channel,
		Priority:       notification.Priority,
		Recipient: provider.Recipient{
			Email:       user.Email,
			PhoneNumber: user.PhoneNumber,
			PushToken:   user.PushToken,
			Name:        user.Name,
		},
		Subject: template.Subject,
		Body:    renderTemplate(template.Body, notification.TemplateParams),
		Params:  notification.TemplateParams,
	}, nil
}

// renderTemplate substitutes {{key}} placeholders with parameter values.
// Unknown placeholders are left in place so missing parameters are visible
// in the delivered message rather than silently blanked.
func renderTemplate(body string, params map[string]string) string {
	if len(params) == 0 {
		return body
	}
	rendered := body
	for key, value := range params {
		rendered = strings.ReplaceAll(rendered, "{{"+key+"}}", value)
	}
	return rendered
}

func buildAttempt(
	deliveryID string,
	attemptNumber int,
	outcome domain.AttemptOutcome,
	response *provider.Response,
	sendErr error,
	latency time.Duration,
	now time.Time,
) *domain.DeliveryAttempt {
	var statusCode *int
	var responseBody *string
	var attemptErr *string

	if response != nil {
		if response.StatusCode > 0 {
			value := response.StatusCode
			statusCode = &value
		}
		if body := strings.TrimSpace(response.Body); body != "" {
			value := response.Body
			responseBody = &value
		}
	}

	if sendErr != nil {
		value := sendErr.Error()
		attemptErr = &value

		if statusCode == nil {
			if code := provider.StatusCodeOf(sendErr); code > 0 {
				value := code
				statusCode = &value
			}
		}
	}

	return &domain.DeliveryAttempt{
		ID:            uuid.NewString(),
		DeliveryID:    deliveryID,
		AttemptNumber: attemptNumber,
		Outcome:       outcome,
		StatusCode:    statusCode,
		ResponseBody:  responseBody,
		Error:         attemptErr,
		LatencyMS:     latency.Milliseconds(),
		CreatedAt:     now,
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
