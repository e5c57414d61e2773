package norms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

// maxResponseBytes bounds how much of a norm service response is read.
const maxResponseBytes = 64 << 10

// HTTPLookup queries a remote norm service:
//
//	GET {base}/v1/subtests/{lc|oe}/score?age_months=75&raw=20
//	GET {base}/v1/composite/score?sum=203
//
// A 200 carries {"standardScore": 105, "percentileRank": "63rd"}. 404 and
// 422 mean the inputs are outside the tables; 429 and 5xx are transient and
// may carry Retry-After.
type HTTPLookup struct {
	base   *url.URL
	client *http.Client
}

var _ CoreLookup = (*HTTPLookup)(nil)

// NewHTTPLookup creates a provider for the service at baseURL. A nil client
// uses http.DefaultClient; timeouts belong to TimeoutMiddleware.
func NewHTTPLookup(baseURL string, client *http.Client) (*HTTPLookup, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid norm service URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid norm service URL %q: scheme must be http or https", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPLookup{base: u, client: client}, nil
}

// Source implements CoreLookup.
func (h *HTTPLookup) Source() string { return "http" }

type scoreBody struct {
	StandardScore  int    `json:"standardScore"`
	PercentileRank string `json:"percentileRank"`
}

// Lookup implements CoreLookup.
func (h *HTTPLookup) Lookup(ctx context.Context, q Query) (domain.NormScore, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint(q), nil)
	if err != nil {
		return domain.NormScore{}, fmt.Errorf("build norm request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.NormScore{}, ports.NewLookupError(h.Source(), q.Operation(), ctxErr)
		}
		return domain.NormScore{}, ports.NewLookupError(h.Source(), q.Operation(),
			fmt.Errorf("%w: %v", ports.ErrServiceUnavailable, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.NormScore{}, ports.NewLookupError(h.Source(), q.Operation(),
			fmt.Errorf("%w: read body: %v", ports.ErrServiceUnavailable, err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return h.decode(q, body)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnprocessableEntity:
		return domain.NormScore{}, outOfRange(q, errorDetail(body))
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.NormScore{}, h.transient(q, ports.ErrRateLimited, resp)
	case resp.StatusCode >= 500:
		return domain.NormScore{}, h.transient(q, ports.ErrServiceUnavailable, resp)
	default:
		return domain.NormScore{}, ports.NewLookupError(h.Source(), q.Operation(),
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, errorDetail(body)))
	}
}

func (h *HTTPLookup) endpoint(q Query) string {
	u := *h.base
	v := url.Values{}
	if q.Kind == KindComposite {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/composite/score"
		v.Set("sum", strconv.Itoa(q.SumStandardScores))
	} else {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/subtests/" + q.Subtest.TableKey() + "/score"
		v.Set("age_months", strconv.Itoa(q.AgeInMonths))
		v.Set("raw", strconv.Itoa(q.RawScore))
	}
	u.RawQuery = v.Encode()
	return u.String()
}

func (h *HTTPLookup) decode(q Query, body []byte) (domain.NormScore, error) {
	var sb scoreBody
	if err := json.Unmarshal(body, &sb); err != nil {
		return domain.NormScore{}, ports.NewLookupError(h.Source(), q.Operation(),
			fmt.Errorf("%w: %v", ports.ErrInvalidUpstreamResponse, err))
	}
	if sb.StandardScore <= 0 || !domain.ValidPercentileRank(sb.PercentileRank) {
		return domain.NormScore{}, ports.NewLookupError(h.Source(), q.Operation(),
			fmt.Errorf("%w: standardScore=%d percentileRank=%q", ports.ErrInvalidUpstreamResponse, sb.StandardScore, sb.PercentileRank))
	}
	return domain.NormScore{StandardScore: sb.StandardScore, PercentileRank: sb.PercentileRank}, nil
}

func (h *HTTPLookup) transient(q Query, sentinel error, resp *http.Response) error {
	err := ports.NewLookupError(h.Source(), q.Operation(), fmt.Errorf("%w: status %d", sentinel, resp.StatusCode))
	if d, ok := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
		err.RetryAfter = &d
	}
	return err
}

func outOfRange(q Query, detail string) error {
	if q.Kind == KindComposite {
		e := domain.NewCompositeRangeError(q.SumStandardScores)
		e.Detail = detail
		return e
	}
	return domain.NewSubtestRangeError(q.Subtest, q.AgeInMonths, q.RawScore, detail)
}

// errorDetail extracts a message from the error body shapes norm services
// commonly return: {"error": "..."}, {"error": {"message": "..."}},
// {"detail": "..."} or {"message": "..."}.
func errorDetail(body []byte) string {
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body))
	}
	for _, path := range []string{"error.message", "error", "detail", "message"} {
		if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String {
			return r.String()
		}
	}
	return ""
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}
