package mirror

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vytor/lexisync/internal/errors"
	"github.com/vytor/lexisync/internal/logger"
	"github.com/vytor/lexisync/internal/models"
)

// Client talks to a mirror Server over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a client for the mirror at baseURL. timeout bounds each
// request; for subscriptions it bounds only the wait for response headers.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    timeout,
	}
}

type entriesPayload struct {
	Entries []models.EntryRecord `json:"entries"`
}

func (c *Client) FetchAll(ctx context.Context, ownerID string) ([]models.EntryRecord, error) {
	log := logger.FromContext(ctx).WithPrefix("mirror_client").WithField("owner", ownerID)
	log.Debug("fetching records")
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, c.entriesURL(ownerID), nil)
	if err != nil {
		log.WithError(err).Error("fetch failed")
		return nil, errors.NewRemoteUnavailableError("fetch", err)
	}
	defer resp.Body.Close()

	log.Debug("fetch response received in %v, status=%d", time.Since(start), resp.StatusCode)
	if err := statusError("fetch", resp); err != nil {
		log.WithError(err).Error("fetch rejected")
		return nil, err
	}

	var out entriesPayload
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.WithError(err).Error("failed to decode records")
		return nil, errors.NewRemoteRejectedError("undecodable fetch response", err)
	}
	if out.Entries == nil {
		out.Entries = []models.EntryRecord{}
	}
	log.Info("fetched %d records", len(out.Entries))
	return out.Entries, nil
}

func (c *Client) Put(ctx context.Context, ownerID string, rec models.EntryRecord) error {
	log := logger.FromContext(ctx).WithPrefix("mirror_client").WithFields(map[string]any{
		"owner":    ownerID,
		"entry_id": rec.ID,
	})

	body, err := json.Marshal(rec)
	if err != nil {
		return errors.NewRemoteRejectedError("unencodable record", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodPut, c.entryURL(ownerID, rec.ID), body)
	if err != nil {
		log.WithError(err).Error("put failed")
		return errors.NewRemoteUnavailableError("put", err)
	}
	defer resp.Body.Close()

	if err := statusError("put", resp); err != nil {
		log.WithError(err).Error("put rejected")
		return err
	}
	log.Debug("record stored")
	return nil
}

func (c *Client) Delete(ctx context.Context, ownerID, id string) error {
	log := logger.FromContext(ctx).WithPrefix("mirror_client").WithFields(map[string]any{
		"owner":    ownerID,
		"entry_id": id,
	})

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodDelete, c.entryURL(ownerID, id), nil)
	if err != nil {
		log.WithError(err).Error("delete failed")
		return errors.NewRemoteUnavailableError("delete", err)
	}
	defer resp.Body.Close()

	if err := statusError("delete", resp); err != nil {
		log.WithError(err).Error("delete rejected")
		return err
	}
	log.Debug("record deleted")
	return nil
}

// Subscribe opens a server-sent event stream. The stream is not reopened
// when it drops; the returned channel closes and the caller decides when to
// subscribe again.
func (c *Client) Subscribe(ctx context.Context, ownerID string, onSnapshot func([]models.EntryRecord)) (<-chan struct{}, error) {
	log := logger.FromContext(ctx).WithPrefix("mirror_client").WithField("owner", ownerID)

	streamCtx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(c.timeout, cancel)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.baseURL+"/owners/"+url.PathEscape(ownerID)+"/subscribe", nil)
	if err != nil {
		timer.Stop()
		cancel()
		return nil, errors.NewRemoteRejectedError("invalid subscribe request", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	timer.Stop()
	if err != nil {
		cancel()
		log.WithError(err).Error("subscribe failed")
		return nil, errors.NewRemoteUnavailableError("subscribe", err)
	}
	if err := statusError("subscribe", resp); err != nil {
		resp.Body.Close()
		cancel()
		log.WithError(err).Error("subscribe rejected")
		return nil, err
	}
	log.Info("subscription opened")

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()
		defer resp.Body.Close()
		err := readEvents(resp.Body, func(event string, data []byte) {
			if event != "snapshot" {
				return
			}
			var payload entriesPayload
			if err := json.Unmarshal(data, &payload); err != nil {
				log.WithError(err).Warn("skipping undecodable snapshot")
				return
			}
			if payload.Entries == nil {
				payload.Entries = []models.EntryRecord{}
			}
			onSnapshot(payload.Entries)
		})
		if ctx.Err() != nil {
			log.Debug("subscription closed")
			return
		}
		log.WithError(err).Warn("subscription stream ended")
	}()
	return done, nil
}

func (c *Client) do(ctx context.Context, method, u string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}

func (c *Client) entriesURL(ownerID string) string {
	return c.baseURL + "/owners/" + url.PathEscape(ownerID) + "/entries"
}

func (c *Client) entryURL(ownerID, id string) string {
	return c.entriesURL(ownerID) + "/" + url.PathEscape(id)
}

// statusError classifies a non-2xx response: 5xx and 429 are transient,
// everything else is a permanent rejection.
func statusError(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	cause := fmt.Errorf("%s status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return errors.NewRemoteUnavailableError(op, cause)
	}
	return errors.NewRemoteRejectedError(op+" rejected by mirror", cause)
}

// readEvents parses a text/event-stream body and calls fn per dispatched event.
func readEvents(r io.Reader, fn func(event string, data []byte)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	event := ""
	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				if event == "" {
					event = "message"
				}
				fn(event, bytes.TrimSuffix(data.Bytes(), []byte("\n")))
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			data.WriteByte('\n')
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}
