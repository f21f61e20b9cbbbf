package powerplatform

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/azure/enterprise-policy-linker/types"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	azpolicy "github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

type IOperationPoller interface {
	Poll(ctx context.Context, operationLocation string, timeoutSeconds int, intervalSeconds int) types.FinalStatus
}

type OperationPoller struct {
	TokenScope string
	Credential azcore.TokenCredential
	HTTPClient Doer
	Logger     *logrus.Logger
}

func NewOperationPoller(tokenScope string, credential azcore.TokenCredential, httpClient Doer, logger *logrus.Logger) *OperationPoller {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OperationPoller{
		TokenScope: tokenScope,
		Credential: credential,
		HTTPClient: httpClient,
		Logger:     logger,
	}
}

// Poll drains an asynchronous operation to a terminal status, sleeping
// intervalSeconds between requests. When the budget elapses before a terminal
// status is seen it returns TimedOut — the operation's real outcome is then
// unknown and must be verified out of band. Transient errors from the status
// endpoint are logged and polling continues within the same budget.
func (poller *OperationPoller) Poll(ctx context.Context, operationLocation string, timeoutSeconds int, intervalSeconds int) types.FinalStatus {
	interval := time.Duration(intervalSeconds) * time.Second
	deadlineCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
	defer cancel()

	poller.Logger.Infof("Polling operation %s (timeout %ds, interval %ds)", operationLocation, timeoutSeconds, intervalSeconds)

	var finalStatus types.FinalStatus

	checkOnce := func() error {
		status, err := poller.fetchStatus(deadlineCtx, operationLocation)
		if err != nil {
			poller.Logger.Warnf("Transient polling error, will retry: %v", err)
			return err
		}
		if status.IsTerminal() {
			finalStatus = status
			return nil
		}
		poller.Logger.Debugf("Operation not terminal yet: %s", status)
		return errors.Errorf("operation still in state %s", status)
	}

	// Sleep first: a 202 means the operation has only just been accepted.
	select {
	case <-deadlineCtx.Done():
		return types.FinalStatusTimedOut
	case <-time.After(interval):
	}

	constantInterval := backoff.WithContext(backoff.NewConstantBackOff(interval), deadlineCtx)
	if err := backoff.Retry(checkOnce, constantInterval); err != nil {
		poller.Logger.Warnf("Polling budget of %ds exhausted for %s", timeoutSeconds, operationLocation)
		return types.FinalStatusTimedOut
	}

	poller.Logger.Infof("Operation reached terminal status %s", finalStatus)
	return finalStatus
}

func (poller *OperationPoller) fetchStatus(ctx context.Context, operationLocation string) (types.FinalStatus, error) {
	token, err := poller.Credential.GetToken(ctx, azpolicy.TokenRequestOptions{Scopes: []string{poller.TokenScope}})
	if err != nil {
		return types.FinalStatusNone, errors.Wrap(err, "acquiring token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, operationLocation, nil)
	if err != nil {
		return types.FinalStatusNone, err
	}
	req.Header.Set("Authorization", "Bearer "+token.Token)

	resp, err := poller.HTTPClient.Do(req)
	if err != nil {
		return types.FinalStatusNone, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return types.FinalStatusNone, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.FinalStatusNone, errors.Errorf("status endpoint returned HTTP %d", resp.StatusCode)
	}

	var document struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &document); err != nil {
		return types.FinalStatusNone, errors.Wrap(err, "decoding status document")
	}

	switch strings.ToLower(document.Status) {
	case "succeeded":
		return types.FinalStatusSucceeded, nil
	case "failed":
		return types.FinalStatusFailed, nil
	case "canceled", "cancelled":
		return types.FinalStatusCanceled, nil
	default:
		// Running, InProgress, NotStarted and anything unrecognized all mean
		// "keep polling".
		return types.FinalStatus(document.Status), nil
	}
}
