// Package executor talks to the external backup executor and security
// scanner services.
package executor

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/edvin/safehouse/internal/model"
)

// maxResponseBytes bounds how much of an executor response is read. Download
// responses carry whole archives.
const maxResponseBytes = 512 << 20

// Client is the HTTP client for the backup executor. Every action is a POST
// to the same endpoint with an "action" field; the caller's context carries
// the timeout.
type Client struct {
	httpClient *http.Client
	url        string
	token      string
}

// Option configures the HTTP client shared by Client and Scanner.
type Option func(*http.Client)

// WithTLS makes the client present tlsConfig, e.g. a client certificate for
// mTLS. A nil config leaves the default transport in place.
func WithTLS(tlsConfig *tls.Config) Option {
	return func(hc *http.Client) {
		if tlsConfig == nil {
			return
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsConfig
		hc.Transport = transport
	}
}

func newHTTPClient(opts []Option) *http.Client {
	hc := &http.Client{}
	for _, opt := range opts {
		opt(hc)
	}
	return hc
}

func NewClient(url, token string, opts ...Option) *Client {
	return &Client{httpClient: newHTTPClient(opts), url: url, token: token}
}

type createPayload struct {
	Action string `json:"action"`
	model.ExecutorCreateRequest
}

type backupPayload struct {
	Action   string `json:"action"`
	BackupID string `json:"backupId"`
}

func (c *Client) Create(ctx context.Context, req model.ExecutorCreateRequest) (*model.ExecutorCreateResponse, error) {
	var resp model.ExecutorCreateResponse
	if err := c.post(ctx, "create", createPayload{Action: "create", ExecutorCreateRequest: req}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CreateEmergency(ctx context.Context, req model.ExecutorCreateRequest) (*model.EmergencyArchive, error) {
	req.BackupType = model.BackupTypeEmergency
	var resp model.EmergencyArchive
	if err := c.post(ctx, "create emergency", createPayload{Action: "create", ExecutorCreateRequest: req}, &resp); err != nil {
		return nil, err
	}
	if resp.ZipBuffer == "" {
		return nil, fmt.Errorf("create emergency: empty archive")
	}
	return &resp, nil
}

// Upload forwards an uploaded backup file as multipart form data.
func (c *Client) Upload(ctx context.Context, jobID, filename string, data []byte) (*model.ExecutorUploadResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("action", "upload"); err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	if err := mw.WriteField("jobId", jobID); err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return nil, fmt.Errorf("upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp model.ExecutorUploadResponse
	if err := c.do(req, "upload", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Test(ctx context.Context, backupID string) (bool, error) {
	var resp struct {
		Valid bool `json:"valid"`
	}
	if err := c.post(ctx, "test", backupPayload{Action: "test", BackupID: backupID}, &resp); err != nil {
		return false, err
	}
	return resp.Valid, nil
}

func (c *Client) Restore(ctx context.Context, backupID string) (bool, error) {
	var resp struct {
		Accepted bool `json:"accepted"`
	}
	if err := c.post(ctx, "restore", backupPayload{Action: "restore", BackupID: backupID}, &resp); err != nil {
		return false, err
	}
	return resp.Accepted, nil
}

func (c *Client) Download(ctx context.Context, backupID string) (*model.ExecutorArtifact, error) {
	var resp model.ExecutorArtifact
	if err := c.post(ctx, "download", backupPayload{Action: "download", BackupID: backupID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Cancel(ctx context.Context, backupID string) (bool, error) {
	var resp struct {
		Accepted bool `json:"accepted"`
	}
	if err := c.post(ctx, "cancel", backupPayload{Action: "cancel", BackupID: backupID}, &resp); err != nil {
		return false, err
	}
	return resp.Accepted, nil
}

func (c *Client) post(ctx context.Context, action string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, action, out)
}

func (c *Client) do(req *http.Request, action string, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: status %d: %s", action, resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", action, err)
	}
	return nil
}
