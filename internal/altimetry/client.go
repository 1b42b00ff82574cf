package altimetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/woozymasta/reproj/internal/crs"

	"github.com/cenkalti/backoff/v5"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// ErrUnauthorized is returned when the repository rejects the credentials.
var ErrUnauthorized = errors.New("repository rejected credentials")

// DefaultCRS is used for responses that do not declare one: lon/lat with
// ellipsoidal heights.
var DefaultCRS = crs.EPSG(4979)

// Credentials for the altimetry repository.
type Credentials struct {
	Username string
	Password string
}

// Query selects points from the repository.
type Query struct {
	Start   time.Time
	End     time.Time
	Product string
	Bound   orb.Bound
	Limit   int
}

// Values encodes the query as URL parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.Product != "" {
		v.Set("product", q.Product)
	}
	if !q.Bound.IsZero() {
		v.Set("bbox", strings.Join([]string{
			strconv.FormatFloat(q.Bound.Min[0], 'f', -1, 64),
			strconv.FormatFloat(q.Bound.Min[1], 'f', -1, 64),
			strconv.FormatFloat(q.Bound.Max[0], 'f', -1, 64),
			strconv.FormatFloat(q.Bound.Max[1], 'f', -1, 64),
		}, ","))
	}
	if !q.Start.IsZero() {
		v.Set("start", q.Start.UTC().Format(time.RFC3339))
	}
	if !q.End.IsZero() {
		v.Set("end", q.End.UTC().Format(time.RFC3339))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// Client talks to an authenticated altimetry repository.
type Client struct {
	http    *http.Client
	baseURL string
	creds   Credentials
	token   string
	retries uint
	delay   time.Duration
	mu      sync.Mutex
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetries sets the fixed number of login attempts and the pause between them.
func WithRetries(attempts uint, delay time.Duration) ClientOption {
	return func(c *Client) {
		if attempts > 0 {
			c.retries = attempts
		}
		c.delay = delay
	}
}

// NewClient creates a repository client.
func NewClient(httpClient *http.Client, baseURL string, creds Credentials, opts ...ClientOption) *Client {
	c := &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		retries: 3,
		delay:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login obtains a session token, retrying transient failures a fixed number
// of times. Rejected credentials are not retried.
func (c *Client) Login(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"username": c.creds.Username,
		"password": c.creds.Password,
	})
	if err != nil {
		return err
	}

	attempt := 0
	op := func() (string, error) {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
		if err != nil {
			return "", backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return "", err
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", err
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return "", backoff.Permanent(ErrUnauthorized)
		case resp.StatusCode != http.StatusOK:
			return "", fmt.Errorf("login status %d", resp.StatusCode)
		}

		token := gjson.GetBytes(data, "token").String()
		if token == "" {
			return "", backoff.Permanent(fmt.Errorf("login response has no token"))
		}
		return token, nil
	}

	notify := func(err error, next time.Duration) {
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("retry_in", next).
			Msg("Repository login failed, retrying")
	}

	token, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.delay)),
		backoff.WithMaxTries(c.retries),
		backoff.WithNotify(notify),
	)
	if err != nil {
		return fmt.Errorf("login after %d attempts: %w", attempt, err)
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	log.Debug().Str("repository", c.baseURL).Msg("Repository login succeeded")
	return nil
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Query fetches points. An expired session is renewed once.
func (c *Client) Query(ctx context.Context, q Query) (*Cloud, error) {
	if c.currentToken() == "" {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
	}

	data, status, err := c.search(ctx, q)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		log.Debug().Msg("Repository session expired, logging in again")
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
		if data, status, err = c.search(ctx, q); err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("search status %d", status)
	}

	return ParseResponse(data)
}

func (c *Client) search(ctx context.Context, q Query) ([]byte, int, error) {
	u := c.baseURL + "/search?" + q.Values().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.currentToken())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return data, resp.StatusCode, nil
}

// ParseResponse decodes a search response:
//
//	{"crs": "EPSG:4979", "points": [{"lon": .., "lat": .., "h": .., "t": "..", "beam": ".."}]}
func ParseResponse(data []byte) (*Cloud, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid search response")
	}
	res := gjson.ParseBytes(data)

	id := DefaultCRS
	if v := res.Get("crs"); v.Exists() {
		parsed, err := crs.Parse(v.String())
		if err != nil {
			return nil, err
		}
		id = parsed
	}

	pts := res.Get("points").Array()
	cloud := &Cloud{CRS: id, Points: make([]Point, 0, len(pts))}
	for i, v := range pts {
		lon, lat, h := v.Get("lon"), v.Get("lat"), v.Get("h")
		if !lon.Exists() || !lat.Exists() || !h.Exists() {
			return nil, fmt.Errorf("point %d: missing lon/lat/h", i)
		}

		p := Point{
			X:      lon.Float(),
			Y:      lat.Float(),
			Height: h.Float(),
			Beam:   v.Get("beam").String(),
		}
		if ts := v.Get("t").String(); ts != "" {
			t, err := time.Parse(time.RFC3339Nano, ts)
			if err != nil {
				return nil, fmt.Errorf("point %d: time: %w", i, err)
			}
			p.Time = t
		}
		cloud.Points = append(cloud.Points, p)
	}

	return cloud, nil
}
