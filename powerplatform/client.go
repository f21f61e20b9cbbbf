package powerplatform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/azure/enterprise-policy-linker/types"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	azpolicy "github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

// Doer executes one HTTP request. *http.Client satisfies it; tests substitute
// their own.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SupportedAPIVersions lists the administrative API versions this tool knows
// how to call, oldest first. Single-attempt runs use the oldest version.
var SupportedAPIVersions = []string{"2019-10-01", "2020-10-01", "2023-06-01"}

const maxOpaqueBodyLength = 160

type IOperationClient interface {
	Invoke(ctx context.Context, action types.Action, environmentID string, apiVersion string, bodyVariant types.BodyVariant, policy *types.PolicyResource) *types.LinkOperationAttempt
	RemoveNetworkInjection(ctx context.Context, environmentID string, apiVersion string, policy *types.PolicyResource) *types.LinkOperationAttempt
	DeletePolicyLink(ctx context.Context, environmentID string, apiVersion string) *types.LinkOperationAttempt
}

type OperationClient struct {
	AdminBaseURL string
	TokenScope   string
	Credential   azcore.TokenCredential
	HTTPClient   Doer
	Logger       *logrus.Logger
}

func NewOperationClient(adminBaseURL string, tokenScope string, credential azcore.TokenCredential, httpClient Doer, logger *logrus.Logger) *OperationClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OperationClient{
		AdminBaseURL: strings.TrimSuffix(adminBaseURL, "/"),
		TokenScope:   tokenScope,
		Credential:   credential,
		HTTPClient:   httpClient,
		Logger:       logger,
	}
}

// Invoke issues one link/unlink request and classifies the immediate
// response. It never retries and never returns an error: transport and parse
// failures are recorded on the attempt so the fallback runner can reason
// about them.
func (client *OperationClient) Invoke(ctx context.Context, action types.Action, environmentID string, apiVersion string, bodyVariant types.BodyVariant, policy *types.PolicyResource) *types.LinkOperationAttempt {
	attempt := &types.LinkOperationAttempt{
		Action:      action,
		APIVersion:  apiVersion,
		BodyVariant: bodyVariant,
	}
	endpoint := fmt.Sprintf("%s/environments/%s/enterprisePolicies/NetworkInjection/%s?api-version=%s", client.AdminBaseURL, environmentID, action, apiVersion)
	client.Logger.Infof("Invoking %s for environment %s (api-version %s, body variant %s)", action, environmentID, apiVersion, bodyVariant)
	return client.execute(ctx, http.MethodPost, endpoint, payloadFor(bodyVariant, policy), attempt)
}

// RemoveNetworkInjection is the alternate unlink endpoint shape used when the
// regular unlink action keeps reporting a conflict for a policy that is still
// linked.
func (client *OperationClient) RemoveNetworkInjection(ctx context.Context, environmentID string, apiVersion string, policy *types.PolicyResource) *types.LinkOperationAttempt {
	attempt := &types.LinkOperationAttempt{
		Action:      types.ActionUnlink,
		APIVersion:  apiVersion,
		BodyVariant: types.BodyVariantSystemPath,
	}
	endpoint := fmt.Sprintf("%s/environments/%s/enterprisePolicies/NetworkInjection/removeNetworkInjection?api-version=%s", client.AdminBaseURL, environmentID, apiVersion)
	client.Logger.Infof("Invoking removeNetworkInjection for environment %s (api-version %s)", environmentID, apiVersion)
	return client.execute(ctx, http.MethodPost, endpoint, payloadFor(types.BodyVariantSystemPath, policy), attempt)
}

// DeletePolicyLink is the last-resort unlink shape: a direct DELETE on the
// policy sub-resource.
func (client *OperationClient) DeletePolicyLink(ctx context.Context, environmentID string, apiVersion string) *types.LinkOperationAttempt {
	attempt := &types.LinkOperationAttempt{
		Action:      types.ActionUnlink,
		APIVersion:  apiVersion,
		BodyVariant: types.BodyVariantEmpty,
	}
	endpoint := fmt.Sprintf("%s/environments/%s/enterprisePolicies/NetworkInjection?api-version=%s", client.AdminBaseURL, environmentID, apiVersion)
	client.Logger.Infof("Deleting policy link for environment %s (api-version %s)", environmentID, apiVersion)
	return client.execute(ctx, http.MethodDelete, endpoint, nil, attempt)
}

func payloadFor(bodyVariant types.BodyVariant, policy *types.PolicyResource) map[string]any {
	switch bodyVariant {
	case types.BodyVariantGuid, types.BodyVariantSystemPath, types.BodyVariantArmID:
		return map[string]any{"SystemId": policy.IdentifierFor(bodyVariant)}
	case types.BodyVariantLowerCamel:
		return map[string]any{"systemId": policy.IdentifierFor(bodyVariant)}
	default:
		return map[string]any{}
	}
}

func (client *OperationClient) execute(ctx context.Context, method string, endpoint string, payload map[string]any, attempt *types.LinkOperationAttempt) *types.LinkOperationAttempt {
	attempt.Endpoint = endpoint
	attempt.RequestID = uuid.NewString()

	token, err := client.Credential.GetToken(ctx, azpolicy.TokenRequestOptions{Scopes: []string{client.TokenScope}})
	if err != nil {
		attempt.ErrorMessage = err.Error()
		client.Logger.Warnf("Failed to acquire token: %v", err)
		return attempt
	}

	var requestBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			attempt.ErrorMessage = err.Error()
			return attempt
		}
		client.Logger.Tracef("Request body: %s", encoded)
		requestBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, requestBody)
	if err != nil {
		attempt.ErrorMessage = err.Error()
		return attempt
	}
	req.Header.Set("Authorization", "Bearer "+token.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-ms-client-request-id", attempt.RequestID)

	resp, err := client.HTTPClient.Do(req)
	if err != nil {
		attempt.ErrorMessage = err.Error()
		client.Logger.Warnf("Request to %s failed: %v", endpoint, err)
		return attempt
	}
	defer resp.Body.Close()

	responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	attempt.HTTPStatus = resp.StatusCode
	attempt.CorrelationID = correlationID(resp.Header)

	switch {
	case resp.StatusCode == http.StatusAccepted:
		attempt.OperationLocation = resp.Header.Get("Operation-Location")
		client.Logger.Debugf("Accepted, operation location: %s", attempt.OperationLocation)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// Some versions return 200 with an error envelope in the body.
		if envelope := decodeEnvelope(responseBody); envelope.Structured != nil {
			attempt.ErrorCode = envelope.Structured.Code
			attempt.ErrorMessage = envelope.Structured.Message
		}
	default:
		envelope := decodeEnvelope(responseBody)
		if envelope.Structured != nil {
			attempt.ErrorCode = envelope.Structured.Code
			attempt.ErrorMessage = envelope.Structured.Message
		} else {
			attempt.ErrorMessage = envelope.Opaque
		}
		client.Logger.Debugf("Request returned %d (code %q, correlation id %q): %s", attempt.HTTPStatus, attempt.ErrorCode, attempt.CorrelationID, attempt.ErrorMessage)
	}

	return attempt
}

func correlationID(header http.Header) string {
	if id := header.Get("x-ms-correlation-request-id"); id != "" {
		return id
	}
	return header.Get("x-ms-request-id")
}

// responseEnvelope is the tagged union every remote response body collapses
// into at this boundary: a structured error envelope when the body carries
// one, otherwise a truncated opaque snippet. Downstream components never
// inspect raw JSON.
type responseEnvelope struct {
	Structured *structuredError
	Opaque     string
}

type structuredError struct {
	Code    string
	Message string
}

func decodeEnvelope(body []byte) responseEnvelope {
	var parsed struct {
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil && (parsed.Error.Code != "" || parsed.Error.Message != "") {
		return responseEnvelope{Structured: &structuredError{Code: parsed.Error.Code, Message: parsed.Error.Message}}
	}

	opaque := strings.TrimSpace(string(body))
	if len(opaque) > maxOpaqueBodyLength {
		opaque = opaque[:maxOpaqueBodyLength]
	}
	return responseEnvelope{Opaque: opaque}
}
