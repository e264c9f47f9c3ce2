// Package questclient is an HTTP client for the quest API. State-changing
// calls are signed with the configured key.
package questclient

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/juno-intents/quest-escrow/internal/authsig"
	"github.com/juno-intents/quest-escrow/internal/questapi"
	"github.com/juno-intents/quest-escrow/internal/quest"
)

var (
	ErrInvalidConfig = errors.New("questclient: invalid config")
	ErrNoSigner      = errors.New("questclient: signing key required")
	ErrAPI           = errors.New("questclient: api error")
)

// APIError is a non-2xx response. Code is the server's stable error code.
type APIError struct {
	Status int
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("questclient: status %d: %s", e.Status, e.Code)
}

func (e *APIError) Unwrap() error { return ErrAPI }

// CodeOf returns the API error code carried by err, or "".
func CodeOf(err error) string {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

type Option func(*Client) error

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return fmt.Errorf("%w: nil http client", ErrInvalidConfig)
		}
		c.hc = hc
		return nil
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("%w: timeout must be > 0", ErrInvalidConfig)
		}
		c.hc.Timeout = d
		return nil
	}
}

func WithSigner(key *ecdsa.PrivateKey) Option {
	return func(c *Client) error {
		if key == nil {
			return fmt.Errorf("%w: nil key", ErrInvalidConfig)
		}
		c.key = key
		return nil
	}
}

func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) error {
		if n <= 0 {
			return fmt.Errorf("%w: max response bytes must be > 0", ErrInvalidConfig)
		}
		c.maxRespBytes = n
		return nil
	}
}

// WithInsecureHTTP allows plain HTTP. Use only against a local API.
func WithInsecureHTTP() Option {
	return func(c *Client) error {
		c.allowInsecureHTTP = true
		return nil
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) error {
		if now == nil {
			return fmt.Errorf("%w: nil clock", ErrInvalidConfig)
		}
		c.now = now
		return nil
	}
}

type Client struct {
	baseURL string
	hc      *http.Client
	key     *ecdsa.PrivateKey
	now     func() time.Time

	maxRespBytes      int64
	allowInsecureHTTP bool
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("%w: missing base url", ErrInvalidConfig)
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse base url: %v", ErrInvalidConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: base url must be http(s)", ErrInvalidConfig)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: base url missing host", ErrInvalidConfig)
	}

	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		hc:           &http.Client{Timeout: 10 * time.Second},
		now:          time.Now,
		maxRespBytes: 4 << 20,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if u.Scheme == "http" && !c.allowInsecureHTTP {
		return nil, fmt.Errorf("%w: insecure http not allowed", ErrInvalidConfig)
	}
	return c, nil
}

// Address is the signer address, or the zero address without a key.
func (c *Client) Address() common.Address {
	if c.key == nil {
		return common.Address{}
	}
	return authsig.Address(c.key)
}

func (c *Client) Config(ctx context.Context) (questapi.ConfigView, error) {
	var out struct {
		Config questapi.ConfigView `json:"config"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/config", nil, false, &out)
	return out.Config, err
}

func (c *Client) Quest(ctx context.Context, id uint64) (questapi.QuestView, error) {
	var out struct {
		Quest questapi.QuestView `json:"quest"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/quests/"+strconv.FormatUint(id, 10), nil, false, &out)
	return out.Quest, err
}

type ListQuestsParams struct {
	Status  string
	Creator common.Address
	Limit   int
	// AfterID is the nextAfterId of the previous page, or "" for the first page.
	AfterID string
}

// ListQuests returns one page of quests and the cursor of the next page.
func (c *Client) ListQuests(ctx context.Context, p ListQuestsParams) ([]questapi.QuestView, string, error) {
	q := url.Values{}
	if p.Status != "" {
		q.Set("status", p.Status)
	}
	if p.Creator != (common.Address{}) {
		q.Set("creator", p.Creator.Hex())
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.AfterID != "" {
		q.Set("afterId", p.AfterID)
	}
	path := "/v1/quests"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Quests      []questapi.QuestView `json:"quests"`
		NextAfterID string               `json:"nextAfterId"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, false, &out); err != nil {
		return nil, "", err
	}
	return out.Quests, out.NextAfterID, nil
}

func (c *Client) Claim(ctx context.Context, ref quest.ClaimRef) (questapi.ClaimView, error) {
	var out struct {
		Claim questapi.ClaimView `json:"claim"`
	}
	err := c.do(ctx, http.MethodGet, claimPath(ref, ""), nil, false, &out)
	return out.Claim, err
}

// Content fetches a stored description or proof payload by hash.
func (c *Client) Content(ctx context.Context, kind string, hash [32]byte) ([]byte, error) {
	switch kind {
	case "descriptions", "proofs":
	default:
		return nil, fmt.Errorf("%w: unknown content kind %q", ErrInvalidConfig, kind)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/"+kind+"/"+common.Hash(hash).Hex(), nil)
	if err != nil {
		return nil, fmt.Errorf("questclient: build request: %w", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("questclient: http do: %w", err)
	}
	defer resp.Body.Close()

	body, err := readAllLimited(resp.Body, c.maxRespBytes)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) Approve(ctx context.Context, ref quest.ClaimRef) (quest.QuestCompleted, error) {
	var out struct {
		Completed quest.QuestCompleted `json:"completed"`
	}
	err := c.do(ctx, http.MethodPost, claimPath(ref, "approve"), nil, true, &out)
	return out.Completed, err
}

func (c *Client) Reject(ctx context.Context, ref quest.ClaimRef, safetyFlagged bool) (quest.QuestFailed, error) {
	var out struct {
		Failed quest.QuestFailed `json:"failed"`
	}
	err := c.do(ctx, http.MethodPost, claimPath(ref, "reject"), questapi.RejectRequest{SafetyFlagged: safetyFlagged}, true, &out)
	return out.Failed, err
}

func (c *Client) Expire(ctx context.Context, ref quest.ClaimRef) (questapi.ClaimView, error) {
	var out struct {
		Claim questapi.ClaimView `json:"claim"`
	}
	err := c.do(ctx, http.MethodPost, claimPath(ref, "expire"), nil, false, &out)
	return out.Claim, err
}

func (c *Client) AutoApprove(ctx context.Context, ref quest.ClaimRef) (quest.QuestCompleted, error) {
	var out struct {
		Completed quest.QuestCompleted `json:"completed"`
	}
	err := c.do(ctx, http.MethodPost, claimPath(ref, "auto-approve"), nil, false, &out)
	return out.Completed, err
}

func claimPath(ref quest.ClaimRef, action string) string {
	p := "/v1/quests/" + strconv.FormatUint(ref.QuestID, 10) + "/claims/" + ref.Claimer.Hex()
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, in any, sign bool, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("questclient: marshal request: %w", err)
		}
		body = b
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("questclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sign {
		if c.key == nil {
			return ErrNoSigner
		}
		if err := authsig.SignRequest(req, body, c.key, c.now()); err != nil {
			return fmt.Errorf("questclient: sign: %w", err)
		}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("questclient: http do: %w", err)
	}
	defer resp.Body.Close()

	raw, err := readAllLimited(resp.Body, c.maxRespBytes)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp.StatusCode, raw)
	}

	var env struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("questclient: decode response: %w", err)
	}
	if env.Version != "v1" {
		return fmt.Errorf("questclient: unexpected response version: %q", env.Version)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("questclient: decode response: %w", err)
		}
	}
	return nil
}

func apiError(status int, body []byte) error {
	var eb struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &eb)
	code := strings.TrimSpace(eb.Error)
	if code == "" {
		code = http.StatusText(status)
	}
	return &APIError{Status: status, Code: code}
}

func readAllLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	lr := &io.LimitedReader{R: r, N: maxBytes + 1}
	b, err := io.ReadAll(lr)
	if err != nil {
		return nil, fmt.Errorf("questclient: read response: %w", err)
	}
	if int64(len(b)) > maxBytes {
		return nil, fmt.Errorf("questclient: response too large")
	}
	return b, nil
}
