package orchestrator

import (
	"context"
	"errors"

	"github.com/azure/enterprise-policy-linker/azure"
	"github.com/azure/enterprise-policy-linker/config"
	"github.com/azure/enterprise-policy-linker/matrix"
	"github.com/azure/enterprise-policy-linker/powerplatform"
	"github.com/azure/enterprise-policy-linker/types"

	"github.com/sirupsen/logrus"
)

type State string

const (
	StateIdle       State = "Idle"
	StateResolving  State = "Resolving"
	StateInvoking   State = "Invoking"
	StatePolling    State = "Polling"
	StateEvaluating State = "Evaluating"
)

type ILinkageOrchestrator interface {
	EnsureLinked(ctx context.Context) (*types.LinkageOutcome, error)
	EnsureUnlinked(ctx context.Context) (*types.LinkageOutcome, error)
	RunExhaustive(ctx context.Context, actions []types.Action) (*types.LinkageOutcome, error)
}

// LinkageOrchestrator sequences locator, client, poller and fallback runner
// into a single idempotent ensure-linked / ensure-unlinked operation. One
// orchestration run never loops back into resolving; a caller that wants a
// full sweep asks for exhaustive mode explicitly.
type LinkageOrchestrator struct {
	Config            *config.Config
	PolicyLocator     azure.IPolicyLocator
	EnvironmentClient powerplatform.IEnvironmentClient
	MatrixRunner      matrix.IMatrixRunner
	Poller            powerplatform.IOperationPoller
	TimeoutSeconds    int
	IntervalSeconds   int
	Logger            *logrus.Logger

	state State
}

func NewLinkageOrchestrator(cfg *config.Config, policyLocator azure.IPolicyLocator, environmentClient powerplatform.IEnvironmentClient, matrixRunner matrix.IMatrixRunner, poller powerplatform.IOperationPoller, timeoutSeconds int, intervalSeconds int, logger *logrus.Logger) *LinkageOrchestrator {
	return &LinkageOrchestrator{
		Config:            cfg,
		PolicyLocator:     policyLocator,
		EnvironmentClient: environmentClient,
		MatrixRunner:      matrixRunner,
		Poller:            poller,
		TimeoutSeconds:    timeoutSeconds,
		IntervalSeconds:   intervalSeconds,
		Logger:            logger,
		state:             StateIdle,
	}
}

func (orchestrator *LinkageOrchestrator) EnsureLinked(ctx context.Context) (*types.LinkageOutcome, error) {
	return orchestrator.run(ctx, types.ActionLink)
}

func (orchestrator *LinkageOrchestrator) EnsureUnlinked(ctx context.Context) (*types.LinkageOutcome, error) {
	return orchestrator.run(ctx, types.ActionUnlink)
}

func (orchestrator *LinkageOrchestrator) run(ctx context.Context, action types.Action) (*types.LinkageOutcome, error) {
	outcome := &types.LinkageOutcome{Outcome: types.OutcomeUnknown}

	orchestrator.transition(StateResolving)
	policy, environment, err := orchestrator.resolve(ctx, action)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) && action == types.ActionUnlink {
			orchestrator.Logger.Infof("Nothing to unlink: %v", err)
			outcome.Outcome = types.OutcomeAlreadyInDesiredState
			return outcome, nil
		}
		return nil, err
	}

	orchestrator.transition(StateInvoking)
	attempt := orchestrator.MatrixRunner.RunSingle(ctx, action, environment.ID, policy)
	outcome.Attempts = append(outcome.Attempts, attempt)

	if attempt.OperationLocation != "" {
		orchestrator.transition(StatePolling)
		attempt.FinalStatus = orchestrator.Poller.Poll(ctx, attempt.OperationLocation, orchestrator.TimeoutSeconds, orchestrator.IntervalSeconds)
		if attempt.FinalStatus == types.FinalStatusTimedOut {
			// Unknown, never silently success: the operation may still
			// complete after the budget elapsed.
			orchestrator.Logger.Warnf("Polling timed out, outcome is unknown and must be verified out of band")
			outcome.Outcome = types.OutcomeUnknown
			return outcome, nil
		}
	}

	orchestrator.transition(StateEvaluating)
	if attempt.Succeeded() {
		outcome.Outcome = successOutcome(action)
		orchestrator.Logger.Infof("Environment %s is now %s", environment.ID, outcome.Outcome)
		return outcome, nil
	}

	if action == types.ActionUnlink {
		verdict, extraAttempts := orchestrator.MatrixRunner.EvaluateUnlinkFailure(ctx, attempt, environment.ID, policy)
		outcome.Attempts = append(outcome.Attempts, extraAttempts...)
		outcome.Outcome = verdict
		return outcome, nil
	}

	outcome.Outcome = types.OutcomeFailed
	return outcome, nil
}

// RunExhaustive resolves once and then sweeps the full fallback matrix for
// diagnostics. Success is declared when any attempt for the requested action
// succeeded, but every triple is tried regardless.
func (orchestrator *LinkageOrchestrator) RunExhaustive(ctx context.Context, actions []types.Action) (*types.LinkageOutcome, error) {
	outcome := &types.LinkageOutcome{Outcome: types.OutcomeFailed}

	orchestrator.transition(StateResolving)
	action := actions[0]
	policy, environment, err := orchestrator.resolve(ctx, action)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) && action == types.ActionUnlink {
			outcome.Outcome = types.OutcomeAlreadyInDesiredState
			return outcome, nil
		}
		return nil, err
	}

	orchestrator.transition(StateInvoking)
	outcome.Attempts = orchestrator.MatrixRunner.RunExhaustive(ctx, actions, environment.ID, policy)

	orchestrator.transition(StateEvaluating)
	for _, attempt := range outcome.Attempts {
		if attempt.Action == action && attempt.Succeeded() {
			outcome.Outcome = successOutcome(action)
			break
		}
	}
	return outcome, nil
}

func (orchestrator *LinkageOrchestrator) resolve(ctx context.Context, action types.Action) (*types.PolicyResource, *types.EnvironmentRef, error) {
	policy, err := orchestrator.PolicyLocator.ResolvePolicy(ctx, orchestrator.Config.ResourceGroup, orchestrator.Config.EnterprisePolicyName)
	if err != nil {
		return nil, nil, err
	}

	if orchestrator.Config.EnvironmentID != "" {
		return policy, &types.EnvironmentRef{
			DisplayName: orchestrator.Config.EnvironmentName,
			ID:          orchestrator.Config.EnvironmentID,
		}, nil
	}

	environment, err := orchestrator.EnvironmentClient.ResolveEnvironment(ctx, orchestrator.Config.EnvironmentName)
	if err != nil {
		return nil, nil, err
	}
	// Resolved id is handed back through the config object so the caller can
	// persist it after a successful run.
	orchestrator.Config.EnvironmentID = environment.ID
	return policy, environment, nil
}

func (orchestrator *LinkageOrchestrator) transition(next State) {
	orchestrator.Logger.Debugf("State transition: %s -> %s", orchestrator.state, next)
	orchestrator.state = next
}

func successOutcome(action types.Action) types.Outcome {
	if action == types.ActionLink {
		return types.OutcomeLinked
	}
	return types.OutcomeUnlinked
}
