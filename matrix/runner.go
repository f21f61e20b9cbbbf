package matrix

import (
	"context"
	"net/http"

	"github.com/azure/enterprise-policy-linker/powerplatform"
	"github.com/azure/enterprise-policy-linker/types"

	"github.com/sirupsen/logrus"
)

type IMatrixRunner interface {
	RunSingle(ctx context.Context, action types.Action, environmentID string, policy *types.PolicyResource) *types.LinkOperationAttempt
	RunExhaustive(ctx context.Context, actions []types.Action, environmentID string, policy *types.PolicyResource) []*types.LinkOperationAttempt
	EvaluateUnlinkFailure(ctx context.Context, failed *types.LinkOperationAttempt, environmentID string, policy *types.PolicyResource) (types.Outcome, []*types.LinkOperationAttempt)
}

// MatrixRunner re-attempts link/unlink calls across the fallback matrix of
// (action, apiVersion, bodyVariant) triples. The matrix dimensions are data;
// the same loop serves diagnostics sweeps and targeted conflict recovery.
type MatrixRunner struct {
	OperationClient   powerplatform.IOperationClient
	EnvironmentClient powerplatform.IEnvironmentClient
	Poller            powerplatform.IOperationPoller
	APIVersions       []string
	TimeoutSeconds    int
	IntervalSeconds   int
	Logger            *logrus.Logger
}

func NewMatrixRunner(operationClient powerplatform.IOperationClient, environmentClient powerplatform.IEnvironmentClient, poller powerplatform.IOperationPoller, apiVersions []string, timeoutSeconds int, intervalSeconds int, logger *logrus.Logger) *MatrixRunner {
	if len(apiVersions) == 0 {
		apiVersions = powerplatform.SupportedAPIVersions
	}
	return &MatrixRunner{
		OperationClient:   operationClient,
		EnvironmentClient: environmentClient,
		Poller:            poller,
		APIVersions:       apiVersions,
		TimeoutSeconds:    timeoutSeconds,
		IntervalSeconds:   intervalSeconds,
		Logger:            logger,
	}
}

// RunSingle issues exactly one attempt: the requested action, the oldest
// supported API version, and the system-path body variant. Polling is left to
// the caller so the state machine stays observable.
func (runner *MatrixRunner) RunSingle(ctx context.Context, action types.Action, environmentID string, policy *types.PolicyResource) *types.LinkOperationAttempt {
	return runner.OperationClient.Invoke(ctx, action, environmentID, runner.APIVersions[0], types.BodyVariantSystemPath, policy)
}

// RunExhaustive sweeps every (action, apiVersion, bodyVariant) triple in
// nested deterministic order, polling each accepted operation inline before
// moving on. Nothing short-circuits: the point is a complete diagnostic
// picture, so every attempt is recorded whether or not an earlier one
// succeeded.
func (runner *MatrixRunner) RunExhaustive(ctx context.Context, actions []types.Action, environmentID string, policy *types.PolicyResource) []*types.LinkOperationAttempt {
	attempts := []*types.LinkOperationAttempt{}
	for _, action := range actions {
		for _, apiVersion := range runner.APIVersions {
			for _, bodyVariant := range types.AllBodyVariants {
				attempt := runner.OperationClient.Invoke(ctx, action, environmentID, apiVersion, bodyVariant, policy)
				runner.pollIfAccepted(ctx, attempt)
				runner.Logger.Infof("Attempt %s/%s/%s: HTTP %d, final status %q", action, apiVersion, bodyVariant, attempt.HTTPStatus, attempt.FinalStatus)
				attempts = append(attempts, attempt)
			}
		}
	}
	return attempts
}

// EvaluateUnlinkFailure applies the conflict-specific unlink policy to an
// attempt that did not succeed:
//
//   - 404 means the linkage does not exist, which is the desired state.
//   - 409 is not automatically a failure: the environment's live linkage is
//     re-checked, and only when the policy is still clearly present do the
//     alternate endpoint shapes get tried before declaring Failed.
//
// The returned attempts are the extra calls made while evaluating.
func (runner *MatrixRunner) EvaluateUnlinkFailure(ctx context.Context, failed *types.LinkOperationAttempt, environmentID string, policy *types.PolicyResource) (types.Outcome, []*types.LinkOperationAttempt) {
	extraAttempts := []*types.LinkOperationAttempt{}

	switch failed.HTTPStatus {
	case http.StatusNotFound:
		runner.Logger.Infof("Unlink returned 404, nothing to unlink")
		return types.OutcomeAlreadyInDesiredState, extraAttempts

	case http.StatusConflict:
		linked, err := runner.EnvironmentClient.IsPolicyLinked(ctx, environmentID, policy)
		if err != nil {
			runner.Logger.Warnf("Could not verify linkage state after 409: %v", err)
			return types.OutcomeUnknown, extraAttempts
		}
		if !linked {
			runner.Logger.Infof("Unlink returned 409 but the policy is no longer linked, treating as already unlinked")
			return types.OutcomeAlreadyInDesiredState, extraAttempts
		}

		runner.Logger.Warnf("Unlink returned 409 and the policy is still linked, trying alternate endpoint shapes")
		for _, invoke := range []func() *types.LinkOperationAttempt{
			func() *types.LinkOperationAttempt {
				return runner.OperationClient.RemoveNetworkInjection(ctx, environmentID, runner.APIVersions[0], policy)
			},
			func() *types.LinkOperationAttempt {
				return runner.OperationClient.DeletePolicyLink(ctx, environmentID, runner.APIVersions[0])
			},
		} {
			attempt := invoke()
			runner.pollIfAccepted(ctx, attempt)
			extraAttempts = append(extraAttempts, attempt)
			if attempt.Succeeded() {
				return types.OutcomeUnlinked, extraAttempts
			}
			if attempt.FinalStatus == types.FinalStatusTimedOut {
				return types.OutcomeUnknown, extraAttempts
			}
		}
		return types.OutcomeFailed, extraAttempts

	default:
		return types.OutcomeFailed, extraAttempts
	}
}

func (runner *MatrixRunner) pollIfAccepted(ctx context.Context, attempt *types.LinkOperationAttempt) {
	if attempt.OperationLocation == "" {
		return
	}
	attempt.FinalStatus = runner.Poller.Poll(ctx, attempt.OperationLocation, runner.TimeoutSeconds, runner.IntervalSeconds)
}
