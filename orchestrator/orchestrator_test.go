package orchestrator

import (
	"context"
	"net/http"
	"testing"

	"github.com/azure/enterprise-policy-linker/config"
	"github.com/azure/enterprise-policy-linker/types"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPolicyLocator struct {
	Policy *types.PolicyResource
	Err    error
}

func (m *mockPolicyLocator) ResolvePolicy(ctx context.Context, resourceGroup string, policyName string) (*types.PolicyResource, error) {
	return m.Policy, m.Err
}

type mockEnvironmentClient struct {
	Environment *types.EnvironmentRef
	Err         error
	Resolved    bool
}

func (m *mockEnvironmentClient) ResolveEnvironment(ctx context.Context, displayName string) (*types.EnvironmentRef, error) {
	m.Resolved = true
	return m.Environment, m.Err
}

func (m *mockEnvironmentClient) IsPolicyLinked(ctx context.Context, environmentID string, policy *types.PolicyResource) (bool, error) {
	return false, nil
}

type mockMatrixRunner struct {
	SingleAttempt     *types.LinkOperationAttempt
	EvaluateOutcome   types.Outcome
	EvaluateAttempts  []*types.LinkOperationAttempt
	EvaluatedFailures []*types.LinkOperationAttempt
	ExhaustiveResult  []*types.LinkOperationAttempt
}

func (m *mockMatrixRunner) RunSingle(ctx context.Context, action types.Action, environmentID string, policy *types.PolicyResource) *types.LinkOperationAttempt {
	return m.SingleAttempt
}

func (m *mockMatrixRunner) RunExhaustive(ctx context.Context, actions []types.Action, environmentID string, policy *types.PolicyResource) []*types.LinkOperationAttempt {
	return m.ExhaustiveResult
}

func (m *mockMatrixRunner) EvaluateUnlinkFailure(ctx context.Context, failed *types.LinkOperationAttempt, environmentID string, policy *types.PolicyResource) (types.Outcome, []*types.LinkOperationAttempt) {
	m.EvaluatedFailures = append(m.EvaluatedFailures, failed)
	return m.EvaluateOutcome, m.EvaluateAttempts
}

type mockPoller struct {
	Status types.FinalStatus
	Polls  int
}

func (m *mockPoller) Poll(ctx context.Context, operationLocation string, timeoutSeconds int, intervalSeconds int) types.FinalStatus {
	m.Polls++
	return m.Status
}

func testConfig() *config.Config {
	return &config.Config{
		EnterprisePolicyName: "ep-test-01",
		EnvironmentName:      "Contoso Dev",
		ResourceGroup:        "rg-network",
		SubscriptionID:       "00000000-0000-0000-0000-000000000001",
		AdminBaseURL:         config.DefaultAdminBaseURL,
		TokenScope:           config.DefaultTokenScope,
	}
}

func newTestOrchestrator(cfg *config.Config, locator *mockPolicyLocator, environmentClient *mockEnvironmentClient, runner *mockMatrixRunner, poller *mockPoller) *LinkageOrchestrator {
	return NewLinkageOrchestrator(cfg, locator, environmentClient, runner, poller, 30, 1, logrus.New())
}

func TestEnsureUnlinkedAsyncSuccess(t *testing.T) {
	locator := &mockPolicyLocator{Policy: &types.PolicyResource{Name: "ep-test-01"}}
	environmentClient := &mockEnvironmentClient{Environment: &types.EnvironmentRef{DisplayName: "Contoso Dev", ID: "env-123"}}
	runner := &mockMatrixRunner{SingleAttempt: &types.LinkOperationAttempt{
		Action:            types.ActionUnlink,
		HTTPStatus:        http.StatusAccepted,
		OperationLocation: "https://x/op/1",
	}}
	poller := &mockPoller{Status: types.FinalStatusSucceeded}

	outcome, err := newTestOrchestrator(testConfig(), locator, environmentClient, runner, poller).EnsureUnlinked(context.Background())

	require.NoError(t, err)
	assert.Equal(t, types.OutcomeUnlinked, outcome.Outcome)
	assert.Equal(t, 1, poller.Polls)
	require.Len(t, outcome.Attempts, 1)
	assert.Equal(t, types.FinalStatusSucceeded, outcome.Attempts[0].FinalStatus)
}

func TestEnsureLinkedImmediateSuccessSkipsPolling(t *testing.T) {
	locator := &mockPolicyLocator{Policy: &types.PolicyResource{Name: "ep-test-01"}}
	environmentClient := &mockEnvironmentClient{Environment: &types.EnvironmentRef{ID: "env-123"}}
	runner := &mockMatrixRunner{SingleAttempt: &types.LinkOperationAttempt{
		Action:     types.ActionLink,
		HTTPStatus: http.StatusOK,
	}}
	poller := &mockPoller{}

	outcome, err := newTestOrchestrator(testConfig(), locator, environmentClient, runner, poller).EnsureLinked(context.Background())

	require.NoError(t, err)
	assert.Equal(t, types.OutcomeLinked, outcome.Outcome)
	assert.Equal(t, 0, poller.Polls)
}

func TestPollingTimeoutIsUnknownNotSuccess(t *testing.T) {
	locator := &mockPolicyLocator{Policy: &types.PolicyResource{Name: "ep-test-01"}}
	environmentClient := &mockEnvironmentClient{Environment: &types.EnvironmentRef{ID: "env-123"}}
	runner := &mockMatrixRunner{SingleAttempt: &types.LinkOperationAttempt{
		Action:            types.ActionLink,
		HTTPStatus:        http.StatusAccepted,
		OperationLocation: "https://x/op/1",
	}}
	poller := &mockPoller{Status: types.FinalStatusTimedOut}

	outcome, err := newTestOrchestrator(testConfig(), locator, environmentClient, runner, poller).EnsureLinked(context.Background())

	require.NoError(t, err)
	assert.Equal(t, types.OutcomeUnknown, outcome.Outcome)
}

func TestUnlinkFailureGoesThroughConflictEvaluation(t *testing.T) {
	locator := &mockPolicyLocator{Policy: &types.PolicyResource{Name: "ep-test-01"}}
	environmentClient := &mockEnvironmentClient{Environment: &types.EnvironmentRef{ID: "env-123"}}
	failedAttempt := &types.LinkOperationAttempt{Action: types.ActionUnlink, HTTPStatus: http.StatusConflict}
	runner := &mockMatrixRunner{
		SingleAttempt:    failedAttempt,
		EvaluateOutcome:  types.OutcomeAlreadyInDesiredState,
		EvaluateAttempts: nil,
	}

	outcome, err := newTestOrchestrator(testConfig(), locator, environmentClient, runner, &mockPoller{}).EnsureUnlinked(context.Background())

	require.NoError(t, err)
	assert.Equal(t, types.OutcomeAlreadyInDesiredState, outcome.Outcome)
	require.Len(t, runner.EvaluatedFailures, 1)
	assert.Same(t, failedAttempt, runner.EvaluatedFailures[0])
}

func TestLinkFailureIsFailedWithoutConflictEvaluation(t *testing.T) {
	locator := &mockPolicyLocator{Policy: &types.PolicyResource{Name: "ep-test-01"}}
	environmentClient := &mockEnvironmentClient{Environment: &types.EnvironmentRef{ID: "env-123"}}
	runner := &mockMatrixRunner{SingleAttempt: &types.LinkOperationAttempt{
		Action:     types.ActionLink,
		HTTPStatus: http.StatusBadRequest,
		ErrorCode:  "InvalidSystemId",
	}}

	outcome, err := newTestOrchestrator(testConfig(), locator, environmentClient, runner, &mockPoller{}).EnsureLinked(context.Background())

	require.NoError(t, err)
	assert.Equal(t, types.OutcomeFailed, outcome.Outcome)
	assert.Empty(t, runner.EvaluatedFailures)
}

func TestUnlinkMissingEnvironmentIsDesiredState(t *testing.T) {
	locator := &mockPolicyLocator{Policy: &types.PolicyResource{Name: "ep-test-01"}}
	environmentClient := &mockEnvironmentClient{Err: errors.Wrap(types.ErrNotFound, "environment Contoso Dev")}

	outcome, err := newTestOrchestrator(testConfig(), locator, environmentClient, &mockMatrixRunner{}, &mockPoller{}).EnsureUnlinked(context.Background())

	require.NoError(t, err)
	assert.Equal(t, types.OutcomeAlreadyInDesiredState, outcome.Outcome)
	assert.Empty(t, outcome.Attempts)
}

func TestUnlinkMissingPolicyIsDesiredState(t *testing.T) {
	locator := &mockPolicyLocator{Err: errors.Wrap(types.ErrNotFound, "enterprise policy ep-test-01")}

	outcome, err := newTestOrchestrator(testConfig(), locator, &mockEnvironmentClient{}, &mockMatrixRunner{}, &mockPoller{}).EnsureUnlinked(context.Background())

	require.NoError(t, err)
	assert.Equal(t, types.OutcomeAlreadyInDesiredState, outcome.Outcome)
}

func TestLinkMissingEnvironmentIsFatal(t *testing.T) {
	locator := &mockPolicyLocator{Policy: &types.PolicyResource{Name: "ep-test-01"}}
	environmentClient := &mockEnvironmentClient{Err: errors.Wrap(types.ErrNotFound, "environment Contoso Dev")}

	_, err := newTestOrchestrator(testConfig(), locator, environmentClient, &mockMatrixRunner{}, &mockPoller{}).EnsureLinked(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestExplicitEnvironmentIDSkipsResolution(t *testing.T) {
	cfg := testConfig()
	cfg.EnvironmentID = "env-123"
	locator := &mockPolicyLocator{Policy: &types.PolicyResource{Name: "ep-test-01"}}
	environmentClient := &mockEnvironmentClient{}
	runner := &mockMatrixRunner{SingleAttempt: &types.LinkOperationAttempt{Action: types.ActionLink, HTTPStatus: http.StatusOK}}

	outcome, err := newTestOrchestrator(cfg, locator, environmentClient, runner, &mockPoller{}).EnsureLinked(context.Background())

	require.NoError(t, err)
	assert.Equal(t, types.OutcomeLinked, outcome.Outcome)
	assert.False(t, environmentClient.Resolved)
}

func TestResolvedEnvironmentIDIsHandedBackInConfig(t *testing.T) {
	cfg := testConfig()
	locator := &mockPolicyLocator{Policy: &types.PolicyResource{Name: "ep-test-01"}}
	environmentClient := &mockEnvironmentClient{Environment: &types.EnvironmentRef{DisplayName: "Contoso Dev", ID: "env-123"}}
	runner := &mockMatrixRunner{SingleAttempt: &types.LinkOperationAttempt{Action: types.ActionLink, HTTPStatus: http.StatusOK}}

	_, err := newTestOrchestrator(cfg, locator, environmentClient, runner, &mockPoller{}).EnsureLinked(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "env-123", cfg.EnvironmentID)
}

func TestRunExhaustiveOutcomeFromAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.EnvironmentID = "env-123"
	locator := &mockPolicyLocator{Policy: &types.PolicyResource{Name: "ep-test-01"}}
	runner := &mockMatrixRunner{ExhaustiveResult: []*types.LinkOperationAttempt{
		{Action: types.ActionLink, HTTPStatus: http.StatusBadRequest, ErrorCode: "InvalidSystemId"},
		{Action: types.ActionLink, HTTPStatus: http.StatusOK},
	}}

	outcome, err := newTestOrchestrator(cfg, locator, &mockEnvironmentClient{}, runner, &mockPoller{}).RunExhaustive(context.Background(), []types.Action{types.ActionLink})

	require.NoError(t, err)
	assert.Equal(t, types.OutcomeLinked, outcome.Outcome)
	assert.Len(t, outcome.Attempts, 2)
}

func TestRunExhaustiveAllFailed(t *testing.T) {
	cfg := testConfig()
	cfg.EnvironmentID = "env-123"
	locator := &mockPolicyLocator{Policy: &types.PolicyResource{Name: "ep-test-01"}}
	runner := &mockMatrixRunner{ExhaustiveResult: []*types.LinkOperationAttempt{
		{Action: types.ActionLink, HTTPStatus: http.StatusBadRequest, ErrorCode: "InvalidSystemId"},
	}}

	outcome, err := newTestOrchestrator(cfg, locator, &mockEnvironmentClient{}, runner, &mockPoller{}).RunExhaustive(context.Background(), []types.Action{types.ActionLink})

	require.NoError(t, err)
	assert.Equal(t, types.OutcomeFailed, outcome.Outcome)
}
