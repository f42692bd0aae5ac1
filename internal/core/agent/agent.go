// Package agent works through a plan of actions against the platform,
// consulting the throttle before every post and comment.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/moltpilot/moltpilot/internal/core"
	"github.com/moltpilot/moltpilot/internal/core/moltapi"
	"github.com/moltpilot/moltpilot/internal/core/plan"
	"github.com/moltpilot/moltpilot/internal/core/throttle"
	"github.com/moltpilot/moltpilot/internal/metrics"
	"github.com/moltpilot/moltpilot/internal/observability"
)

// DefaultMaxWait bounds how long a single action may wait on the throttle.
const DefaultMaxWait = 5 * time.Minute

// Executor performs writes against the platform. *moltapi.Client satisfies it.
type Executor interface {
	CreatePost(ctx context.Context, post core.NewPost) (*moltapi.ActionResult, error)
	CreateComment(ctx context.Context, comment core.NewComment) (*moltapi.ActionResult, error)
	Vote(ctx context.Context, vote core.NewVote) (*moltapi.ActionResult, error)
}

// Ledger records action outcomes. *store.Store satisfies it.
type Ledger interface {
	RecordActivity(ctx context.Context, entry core.ActivityEntry) (core.ActivityEntry, error)
}

// Agent executes plans. Client and Throttle are required.
type Agent struct {
	Client   Executor
	Throttle *throttle.Throttle
	// Ledger is optional.
	Ledger Ledger
	Logger observability.Logger
	Clock  func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
	// MaxWait is the cumulative throttle wait tolerated per action; longer
	// waits skip the action. Zero means DefaultMaxWait.
	MaxWait time.Duration
	// DryRun checks the throttle but sends nothing.
	DryRun bool
}

// Outcome is what happened to one planned action.
type Outcome struct {
	Index    int               `json:"index"`
	Kind     core.ActionKind   `json:"kind"`
	Target   string            `json:"target"`
	Status   core.ActionStatus `json:"status"`
	RemoteID string            `json:"remote_id,omitempty"`
	Message  string            `json:"message,omitempty"`
	Attempts int               `json:"attempts"`
	Waited   time.Duration     `json:"waited"`
	Err      error             `json:"-"`
}

// Report summarizes a run.
type Report struct {
	Outcomes  []Outcome `json:"outcomes"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Denied    int       `json:"denied"`
	DryRun    int       `json:"dry_run"`
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case core.ActionStatusSucceeded:
		r.Succeeded++
	case core.ActionStatusFailed:
		r.Failed++
	case core.ActionStatusDenied:
		r.Denied++
	case core.ActionStatusDryRun:
		r.DryRun++
	}
}

// Run executes the plan in order. An unauthorized response aborts the run,
// as does context cancellation; any other failure is recorded and the run
// moves on to the next action. The report covers every action attempted.
func (a *Agent) Run(ctx context.Context, p *plan.Plan) (*Report, error) {
	if a.Client == nil || a.Throttle == nil {
		return nil, errors.New("agent requires a client and a throttle")
	}
	if p == nil {
		return nil, errors.New("plan is required")
	}

	logger := a.logger()
	report := &Report{}

	logger.Info("agent run starting",
		zap.Int("actions", len(p.Actions)),
		zap.Bool("dry_run", a.DryRun))

	for i, action := range p.Actions {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		outcome := a.perform(ctx, action)
		outcome.Index = i + 1
		report.add(outcome)
		a.record(ctx, outcome)

		fields := []zap.Field{
			zap.Int("index", outcome.Index),
			zap.String("kind", string(outcome.Kind)),
			zap.String("target", outcome.Target),
			zap.String("status", string(outcome.Status)),
			zap.Int("attempts", outcome.Attempts),
			zap.Duration("waited", outcome.Waited),
		}
		if outcome.RemoteID != "" {
			fields = append(fields, zap.String("remote_id", outcome.RemoteID))
		}
		if outcome.Err != nil {
			logger.Warn("action failed", append(fields, zap.Error(outcome.Err))...)
		} else {
			logger.Info("action finished", fields...)
		}

		if errors.Is(outcome.Err, moltapi.ErrUnauthorized) {
			return report, fmt.Errorf("aborting run at action %d: %w", outcome.Index, outcome.Err)
		}
		if errors.Is(outcome.Err, context.Canceled) || errors.Is(outcome.Err, context.DeadlineExceeded) {
			return report, outcome.Err
		}
	}

	logger.Info("agent run finished",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("denied", report.Denied),
		zap.Int("dry_run", report.DryRun))
	return report, nil
}

func (a *Agent) perform(ctx context.Context, action plan.Action) Outcome {
	outcome := Outcome{Kind: action.Kind, Target: action.Target()}

	if a.DryRun {
		decision := a.Throttle.Check(action.Kind)
		outcome.Status = core.ActionStatusDryRun
		outcome.Message = "would send"
		if !decision.Allowed {
			outcome.Message = "would be throttled: " + decision.Reason
		}
		return outcome
	}

	reservation, waited, decision, err := a.reserve(ctx, action.Kind)
	outcome.Waited = waited
	if err != nil {
		outcome.Status = core.ActionStatusFailed
		outcome.Message = err.Error()
		outcome.Err = err
		return outcome
	}
	if !decision.Allowed {
		outcome.Status = core.ActionStatusDenied
		outcome.Message = decision.Reason
		return outcome
	}

	result, err := a.execute(ctx, action)
	if err == nil && result != nil && !result.Success {
		err = fmt.Errorf("platform rejected %s: %s", action.Kind, nonEmpty(result.Message, "no reason given"))
	}
	if err != nil {
		reservation.Cancel()
		outcome.Status = core.ActionStatusFailed
		outcome.Message = err.Error()
		outcome.Err = err
		if apiErr, ok := moltapi.AsAPIError(err); ok {
			outcome.Attempts = apiErr.Attempts
		} else if result != nil {
			outcome.Attempts = result.Attempts
		}
		return outcome
	}

	outcome.Status = core.ActionStatusSucceeded
	if result != nil {
		outcome.RemoteID = result.ID
		outcome.Message = result.Message
		outcome.Attempts = result.Attempts
	}
	return outcome
}

// reserve claims a throttle slot, sleeping through spacing denials while
// the cumulative wait stays within MaxWait.
func (a *Agent) reserve(ctx context.Context, kind core.ActionKind) (*throttle.Reservation, time.Duration, throttle.Decision, error) {
	var waited time.Duration
	for {
		decision, reservation := a.Throttle.Reserve(kind)
		if decision.Allowed {
			return reservation, waited, decision, nil
		}
		if !decision.HasWait || waited+decision.Wait > a.maxWait() {
			return nil, waited, decision, nil
		}

		a.logger().Info("action throttled, waiting",
			zap.String("kind", string(kind)),
			zap.String("reason", decision.Reason),
			zap.Duration("wait", decision.Wait))
		if err := a.sleep(ctx, decision.Wait); err != nil {
			return nil, waited, decision, fmt.Errorf("throttle wait interrupted: %w", err)
		}
		waited += decision.Wait
	}
}

func (a *Agent) execute(ctx context.Context, action plan.Action) (*moltapi.ActionResult, error) {
	switch action.Kind {
	case core.ActionPost:
		return a.Client.CreatePost(ctx, action.Post())
	case core.ActionComment:
		return a.Client.CreateComment(ctx, action.Comment())
	case core.ActionVote:
		return a.Client.Vote(ctx, action.Vote())
	default:
		return nil, fmt.Errorf("unsupported action kind: %q", action.Kind)
	}
}

func (a *Agent) record(ctx context.Context, outcome Outcome) {
	metrics.RecordAction(string(outcome.Kind), string(outcome.Status))
	if a.Ledger == nil {
		return
	}

	// The ledger write must land even when the run is being cancelled.
	_, err := a.Ledger.RecordActivity(context.WithoutCancel(ctx), core.ActivityEntry{
		Kind:      outcome.Kind,
		Target:    outcome.Target,
		Status:    outcome.Status,
		RemoteID:  outcome.RemoteID,
		Message:   outcome.Message,
		Attempts:  outcome.Attempts,
		CreatedAt: a.now(),
	})
	if err != nil {
		a.logger().Warn("failed to record activity", zap.Error(err))
	}
}

func (a *Agent) maxWait() time.Duration {
	if a.MaxWait > 0 {
		return a.MaxWait
	}
	return DefaultMaxWait
}

func (a *Agent) now() time.Time {
	if a.Clock != nil {
		return a.Clock()
	}
	return time.Now()
}

func (a *Agent) sleep(ctx context.Context, d time.Duration) error {
	if a.Sleep != nil {
		return a.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (a *Agent) logger() observability.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return observability.NopLogger()
}

func nonEmpty(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
