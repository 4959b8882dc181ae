package vcs

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

var githubAPIURL = "https://api.github.com"

// tokens are renewed when they expire within this window
const tokenRenewWindow = 10 * time.Minute

type installationTokenRequest struct {
	Repositories []string          `json:"repositories"`
	Permissions  map[string]string `json:"permissions"`
}

type installationToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// githubAppTokens issues read only installation tokens scoped to a single
// repository and caches them until they are about to expire
type githubAppTokens struct {
	auth   Auth
	client *http.Client

	mu     sync.Mutex
	tokens map[string]installationToken
}

func newGithubAppTokens(opts Options) *githubAppTokens {
	return &githubAppTokens{
		auth:   opts.Auth,
		client: newAPIClient(opts),
		tokens: make(map[string]installationToken),
	}
}

// newAPIClient returns http client for GitHub API calls which uses the same
// proxy and timeout as mirrored repositories
func newAPIClient(opts Options) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	if opts.Proxy != "" {
		if proxyURL, err := url.Parse(opts.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return &http.Client{Transport: transport, Timeout: opts.Timeout}
}

func (g *githubAppTokens) token(ctx context.Context, repo string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if t, ok := g.tokens[repo]; ok && t.ExpiresAt.After(time.Now().UTC().Add(tokenRenewWindow)) {
		return t.Token, nil
	}

	t, err := g.requestToken(ctx, installationTokenRequest{
		Repositories: []string{repo},
		Permissions:  map[string]string{"contents": "read"},
	})
	if err != nil {
		return "", err
	}
	g.tokens[repo] = t
	return t.Token, nil
}

func (g *githubAppTokens) requestToken(ctx context.Context, tokenReq installationTokenRequest) (installationToken, error) {
	appJWT, err := g.appJWT()
	if err != nil {
		return installationToken{}, fmt.Errorf("unable to sign app jwt err:%w", err)
	}

	body, err := json.Marshal(tokenReq)
	if err != nil {
		return installationToken{}, err
	}

	endpoint := fmt.Sprintf("%s/app/installations/%s/access_tokens", githubAPIURL, g.auth.GithubAppInstallationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return installationToken{}, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := g.client.Do(req)
	if err != nil {
		return installationToken{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return installationToken{}, fmt.Errorf("installation token request for %v failed status:%d body:%q",
			tokenReq.Repositories, resp.StatusCode, msg)
	}

	var t installationToken
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return installationToken{}, fmt.Errorf("unable to decode installation token err:%w", err)
	}
	return t, nil
}

// appJWT returns short lived RS256 token identifying the app itself
func (g *githubAppTokens) appJWT() (string, error) {
	key, err := readRSAKey(g.auth.GithubAppPrivateKeyPath)
	if err != nil {
		return "", err
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: key}, nil)
	if err != nil {
		return "", err
	}

	now := time.Now()
	return jwt.Signed(signer).Claims(jwt.Claims{
		Issuer: g.auth.GithubAppID,
		// backdated to allow for clock drift, GitHub accepts at most 10 min
		IssuedAt: jwt.NewNumericDate(now.Add(-time.Minute)),
		Expiry:   jwt.NewNumericDate(now.Add(9 * time.Minute)),
	}).Serialize()
}

// readRSAKey reads PEM encoded PKCS1 or PKCS8 RSA private key
func readRSAKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM data found in %s", path)
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("github app private key is not an RSA key")
		}
		return rsaKey, nil
	}
	return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
}
