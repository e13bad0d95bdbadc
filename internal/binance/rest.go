// Package binance speaks the USDⓈ-M Futures REST API: canonical-query
// HMAC-SHA256 signing, method dispatch, and the order/account endpoints the
// gateway drives.
package binance

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"main/internal/clock"
	"main/pkg/exception"
)

// DefaultBaseURL is the production USDⓈ-M Futures REST endpoint.
const DefaultBaseURL = "https://fapi.binance.com"

const (
	recvWindow     = "10000"
	connectTimeout = 5 * time.Second
	totalTimeout   = 10 * time.Second
)

// Credentials carry the two required environment secrets.
type Credentials struct {
	Key    string
	Secret string
}

// CredentialsFromEnv reads BINANCE_API_KEY / BINANCE_API_SECRET. Either one
// missing is a startup-fatal configuration error for the caller.
func CredentialsFromEnv() (Credentials, error) {
	key := os.Getenv("BINANCE_API_KEY")
	if key == "" {
		return Credentials{}, errors.New("BINANCE_API_KEY not set")
	}
	secret := os.Getenv("BINANCE_API_SECRET")
	if secret == "" {
		return Credentials{}, errors.New("BINANCE_API_SECRET not set")
	}
	return Credentials{Key: key, Secret: secret}, nil
}

// Param is one query parameter. Order matters for signing, so parameters
// travel as a slice, never a map.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered parameter list.
type Params []Param

// Add appends a parameter and returns the extended list.
func (p Params) Add(key, value string) Params {
	return append(p, Param{Key: key, Value: value})
}

// Client is a thin signing HTTP client. One instance serves every worker;
// net/http handles connection reuse underneath.
type Client struct {
	http    *http.Client
	baseURL string
	creds   Credentials
}

// NewClient builds a client against baseURL (DefaultBaseURL in production,
// a test server in tests).
func NewClient(creds Credentials, baseURL string) *Client {
	return &Client{
		http: &http.Client{
			Timeout: totalTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   connectTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2: true,
			},
		},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		creds:   creds,
	}
}

// Sign computes the lowercase-hex HMAC-SHA256 of the raw query string.
func Sign(secret, rawQuery string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(rawQuery))
	return hex.EncodeToString(mac.Sum(nil))
}

// RawQuery joins parameters as k=v&k=v in list order, unencoded. This exact
// byte string is what gets signed.
func RawQuery(params Params) string {
	var sb strings.Builder
	for i, p := range params {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(p.Key)
		sb.WriteByte('=')
		sb.WriteString(p.Value)
	}
	return sb.String()
}

func encodedQuery(params Params) string {
	var sb strings.Builder
	for i, p := range params {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.Value))
	}
	return sb.String()
}

// Do performs one request. For signed requests it appends timestamp and
// recvWindow, signs the raw query, and sends the URL-encoded copy with
// `&signature=` attached. GET/DELETE/PUT carry parameters in the URL; POST
// carries them as an x-www-form-urlencoded body. The returned status is the
// HTTP code; transport failures return an error instead.
func (c *Client) Do(ctx context.Context, method, path string, params Params, signed bool) (int, []byte, error) {
	if signed {
		params = params.
			Add("timestamp", strconv.FormatUint(clock.NowMs(), 10)).
			Add("recvWindow", recvWindow)
	}

	query := encodedQuery(params)
	if signed {
		signature := Sign(c.creds.Secret, RawQuery(params))
		if query != "" {
			query += "&signature=" + signature
		} else {
			query = "signature=" + signature
		}
	}

	fullURL := c.baseURL + path
	var body io.Reader
	if method == http.MethodPost {
		body = bytes.NewReader([]byte(query))
	} else if query != "" {
		fullURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return 0, nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("X-MBX-APIKEY", c.creds.Key)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, errors.Wrap(err, "perform request").With("method", method).With("path", path)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, errors.Wrap(err, "read response body")
	}
	return resp.StatusCode, payload, nil
}

// apiError is the {code,msg} body the exchange returns on non-200.
type apiError struct {
	Code int32  `json:"code"`
	Msg  string `json:"msg"`
}

func decodeAPIError(body []byte) apiError {
	var e apiError
	if err := sonic.ConfigFastest.Unmarshal(body, &e); err != nil {
		return apiError{Code: -1, Msg: string(body)}
	}
	return e
}

// listenKeyResponse is the POST /fapi/v1/listenKey body.
type listenKeyResponse struct {
	ListenKey string `json:"listenKey"`
}

// StartListenKey requests a fresh user-data-stream key. Plain API-key auth,
// no signature.
func (c *Client) StartListenKey(ctx context.Context) (string, error) {
	status, body, err := c.Do(ctx, http.MethodPost, "/fapi/v1/listenKey", nil, false)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", errors.Errorf("listenKey request failed: HTTP %d %s", status, body)
	}
	var resp listenKeyResponse
	if err := sonic.ConfigFastest.Unmarshal(body, &resp); err != nil {
		return "", errors.Wrap(err, "decode listenKey response")
	}
	if resp.ListenKey == "" {
		return "", exception.ErrListenKeyMissing
	}
	return resp.ListenKey, nil
}

// KeepAliveListenKey extends the current key's 60-minute validity.
func (c *Client) KeepAliveListenKey(ctx context.Context) error {
	status, body, err := c.Do(ctx, http.MethodPut, "/fapi/v1/listenKey", nil, false)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return errors.Errorf("listenKey keepalive failed: HTTP %d %s", status, body)
	}
	return nil
}
