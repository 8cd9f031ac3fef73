package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/readiness/internal/domain/model"
	"github.com/okian/readiness/internal/domain/types"
	"github.com/okian/readiness/pkg/logger"
)

// ErrReplay is returned when the service rejects part of a replay.
var ErrReplay = errors.New("replay failed")

const maxErrorBody = 512

// httpClient wraps http.Client with JSON helpers.
type httpClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *httpClient {
	return &httpClient{client: &http.Client{Timeout: timeout}, baseURL: baseURL}
}

// do sends a request with an optional JSON body and decodes a JSON
// response into out when out is non-nil.
func (c *httpClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Warn(ctx, "failed to close response body", logger.Error(err))
		}
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// recordBody is the POST /records payload.
type recordBody struct {
	RecordID  string             `json:"record_id"`
	AthleteID string             `json:"athlete_id"`
	Date      string             `json:"date"`
	Domain    string             `json:"domain"`
	Fields    map[string]float64 `json:"fields"`
}

// Replay loads ds into the service at cfg.BaseURL: it checks health,
// upserts the roster, submits every record concurrently and finally
// evaluates one day. Rejected records are counted, not fatal.
func Replay(ctx context.Context, cfg ReplayConfig, ds *Dataset) (*Stats, error) {
	stats := &Stats{StartTime: time.Now(), Athletes: len(ds.Roster), ByStatus: map[types.Status]int{}}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)
	log := logger.Get().Named("replay")

	log.Info(ctx, "starting replay",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("athletes", len(ds.Roster)),
		logger.Int("records", len(ds.Records)),
		logger.Int("workers", cfg.Workers))

	if _, err := client.do(ctx, http.MethodGet, "/healthz", nil, nil); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	for _, a := range ds.Roster {
		if _, err := client.do(ctx, http.MethodPost, "/athletes", a, nil); err != nil {
			return nil, fmt.Errorf("%w: upsert athlete %s: %w", ErrReplay, a.ID, err)
		}
	}

	if err := submitRecords(ctx, client, cfg.Workers, ds.Records, stats); err != nil {
		return nil, err
	}

	day := cfg.Date
	if day.IsZero() {
		for _, r := range ds.Records {
			if r.Date.After(day) {
				day = r.Date
			}
		}
	}
	if !day.IsZero() {
		var res statusesResponse
		path := "/evaluations?date=" + model.DayKey(day)
		if _, err := client.do(ctx, http.MethodPost, path, nil, &res); err != nil {
			return nil, fmt.Errorf("%w: evaluate: %w", ErrReplay, err)
		}
		stats.StatusesEvaluated = len(res.Statuses)
		for _, st := range res.Statuses {
			stats.ByStatus[st.Status]++
		}
		if len(res.Statuses) != len(ds.Roster) {
			log.Warn(ctx, "status count differs from roster size",
				logger.Int("statuses", len(res.Statuses)), logger.Int("roster", len(ds.Roster)))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	log.Info(ctx, "replay completed",
		logger.Int("submitted", stats.RecordsSubmitted),
		logger.Int("accepted", stats.RecordsAccepted),
		logger.Int("duplicate", stats.RecordsDuplicate),
		logger.Int("failed", stats.RecordsFailed),
		logger.Int("statuses", stats.StatusesEvaluated),
		logger.Duration("duration", stats.Duration))
	return stats, nil
}

// submitRecords posts records with a bounded number of workers.
func submitRecords(ctx context.Context, client *httpClient, workers int, records []model.Record, stats *Stats) error {
	var accepted, duplicate, failed int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, r := range records {
		g.Go(func() error {
			body := recordBody{
				RecordID:  r.ID,
				AthleteID: r.AthleteID,
				Date:      model.DayKey(r.Date),
				Domain:    string(r.Domain),
				Fields:    r.Fields,
			}
			var ack ackResponse
			code, err := client.do(gctx, http.MethodPost, "/records", body, &ack)
			switch {
			case gctx.Err() != nil:
				return gctx.Err()
			case err != nil:
				atomic.AddInt64(&failed, 1)
				logger.Get().Debug(gctx, "record rejected", logger.String("record", r.Key()), logger.Error(err))
			case code == http.StatusOK && ack.Duplicate:
				atomic.AddInt64(&duplicate, 1)
			default:
				atomic.AddInt64(&accepted, 1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("context cancelled during submission: %w", err)
	}

	stats.RecordsSubmitted = len(records)
	stats.RecordsAccepted = int(accepted)
	stats.RecordsDuplicate = int(duplicate)
	stats.RecordsFailed = int(failed)
	return nil
}
