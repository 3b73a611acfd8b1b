package security

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// RemoteProvider checks a license endpoint over HTTP, reusing the
// teacher's resty client construction (timeout, retry count/wait,
// transport tuning) now that frames no longer travel over HTTP at all.
type RemoteProvider struct {
	client *resty.Client
	url    string

	mu   sync.RWMutex
	salt float64
}

type licenseResponse struct {
	Valid bool    `json:"valid"`
	Salt  float64 `json:"math_salt"`
}

// NewRemoteProvider builds a client pointed at url. An empty url is
// treated as "no remote check configured" by the caller, which should
// fall back to DevProvider instead of constructing this type.
func NewRemoteProvider(url string) *RemoteProvider {
	client := resty.New().
		SetTimeout(5*time.Second).
		SetHeader("User-Agent", "bikefit-vision/1").
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(50 * time.Millisecond).
		SetDisableWarn(true)

	transport := &http.Transport{
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ResponseHeaderTimeout: 3 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	client.SetTransport(transport)

	return &RemoteProvider{client: client, url: url, salt: 1.0}
}

// VerifyLicense calls the remote endpoint once. On success it also caches
// the server-supplied math salt for subsequent MathSalt calls.
func (p *RemoteProvider) VerifyLicense() (bool, error) {
	resp, err := p.client.R().Get(p.url)
	if err != nil {
		return false, fmt.Errorf("security: license check: %w", err)
	}
	if resp.IsError() {
		return false, fmt.Errorf("security: license check: status %d", resp.StatusCode())
	}

	var body licenseResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return false, fmt.Errorf("security: decode license response: %w", err)
	}

	p.mu.Lock()
	if body.Salt != 0 {
		p.salt = body.Salt
	}
	p.mu.Unlock()

	return body.Valid, nil
}

// MathSalt returns the last salt observed from the remote endpoint, or the
// DevProvider default (1.0) before the first successful check.
func (p *RemoteProvider) MathSalt() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.salt
}

var _ Provider = (*RemoteProvider)(nil)
