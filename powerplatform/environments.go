package powerplatform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/azure/enterprise-policy-linker/types"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	azpolicy "github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

type IEnvironmentClient interface {
	ResolveEnvironment(ctx context.Context, displayName string) (*types.EnvironmentRef, error)
	IsPolicyLinked(ctx context.Context, environmentID string, policy *types.PolicyResource) (bool, error)
}

type EnvironmentClient struct {
	AdminBaseURL string
	APIVersion   string
	TokenScope   string
	Credential   azcore.TokenCredential
	HTTPClient   Doer
	Logger       *logrus.Logger
}

func NewEnvironmentClient(adminBaseURL string, apiVersion string, tokenScope string, credential azcore.TokenCredential, httpClient Doer, logger *logrus.Logger) *EnvironmentClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &EnvironmentClient{
		AdminBaseURL: strings.TrimSuffix(adminBaseURL, "/"),
		APIVersion:   apiVersion,
		TokenScope:   tokenScope,
		Credential:   credential,
		HTTPClient:   httpClient,
		Logger:       logger,
	}
}

type environmentDocument struct {
	Name       string `json:"name"`
	Properties struct {
		DisplayName        string          `json:"displayName"`
		EnterprisePolicies json.RawMessage `json:"enterprisePolicies"`
	} `json:"properties"`
}

// ResolveEnvironment finds the environment whose display name matches,
// case-insensitively. When more than one matches the first is used with a
// warning.
func (client *EnvironmentClient) ResolveEnvironment(ctx context.Context, displayName string) (*types.EnvironmentRef, error) {
	endpoint := fmt.Sprintf("%s/environments?api-version=%s", client.AdminBaseURL, client.APIVersion)
	client.Logger.Infof("Resolving environment %q", displayName)

	var listing struct {
		Value []environmentDocument `json:"value"`
	}
	status, err := client.getJSON(ctx, endpoint, &listing)
	if err != nil {
		return nil, errors.Wrap(err, "listing environments")
	}
	if status != http.StatusOK {
		return nil, errors.Errorf("listing environments returned HTTP %d", status)
	}

	matches := []environmentDocument{}
	for _, environment := range listing.Value {
		if strings.EqualFold(environment.Properties.DisplayName, displayName) {
			matches = append(matches, environment)
		}
	}

	if len(matches) == 0 {
		return nil, errors.Wrapf(types.ErrNotFound, "environment %q", displayName)
	}
	if len(matches) > 1 {
		client.Logger.Warnf("More than one environment matched display name %q, using the first", displayName)
	}

	client.Logger.Debugf("Resolved environment %q to id %s", displayName, matches[0].Name)
	return &types.EnvironmentRef{
		DisplayName: displayName,
		ID:          matches[0].Name,
	}, nil
}

// IsPolicyLinked re-checks the live linkage state of an environment. The key
// under which the vendor payload reports linked policies varies across API
// versions, so presence is decided by searching the serialized
// enterprise-policies block for any of the policy's identifiers.
func (client *EnvironmentClient) IsPolicyLinked(ctx context.Context, environmentID string, policy *types.PolicyResource) (bool, error) {
	endpoint := fmt.Sprintf("%s/environments/%s?api-version=%s", client.AdminBaseURL, environmentID, client.APIVersion)
	client.Logger.Debugf("Checking linkage state of environment %s", environmentID)

	var environment environmentDocument
	status, err := client.getJSON(ctx, endpoint, &environment)
	if err != nil {
		return false, errors.Wrapf(err, "reading environment %s", environmentID)
	}
	if status == http.StatusNotFound {
		return false, errors.Wrapf(types.ErrNotFound, "environment %s", environmentID)
	}
	if status != http.StatusOK {
		return false, errors.Errorf("reading environment %s returned HTTP %d", environmentID, status)
	}

	if len(environment.Properties.EnterprisePolicies) == 0 {
		return false, nil
	}

	linkage := strings.ToLower(string(environment.Properties.EnterprisePolicies))
	for _, identifier := range []string{policy.SystemGUID, policy.SystemID, policy.ArmID} {
		if identifier != "" && strings.Contains(linkage, strings.ToLower(identifier)) {
			return true, nil
		}
	}
	return false, nil
}

func (client *EnvironmentClient) getJSON(ctx context.Context, endpoint string, target any) (int, error) {
	token, err := client.Credential.GetToken(ctx, azpolicy.TokenRequestOptions{Scopes: []string{client.TokenScope}})
	if err != nil {
		return 0, errors.Wrap(err, "acquiring token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token.Token)

	resp, err := client.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(body, target); err != nil {
			return resp.StatusCode, errors.Wrap(err, "decoding response body")
		}
	}
	return resp.StatusCode, nil
}
