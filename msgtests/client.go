package msgtests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/courierlabs/messaging-test-harness/framework"
	"github.com/courierlabs/messaging-test-harness/service"
)

// ProbeClient talks to the test server over the wire, exactly as a real
// client would. Verification never calls the system under test's internal
// functions; everything goes through this externally reachable surface.
type ProbeClient struct {
	baseURL    string
	httpClient *http.Client
	logger     framework.Logger
}

func NewProbeClient(baseURL string, logger framework.Logger) *ProbeClient {
	if logger == nil {
		logger = framework.NullLogger()
	}
	return &ProbeClient{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		logger:     logger,
	}
}

// Send submits one inbound message through POST /send.
func (c *ProbeClient) Send(msg service.Inbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.logger.Printf("sending inbound message: %s", string(data))
	resp, err := c.httpClient.Post(c.baseURL+"/send", "application/json", bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("POST /send returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// State queries GET /state/{id}. A 404 maps back to service.ErrUnknownSubject.
func (c *ProbeClient) State(subject string) (service.StateSnapshot, error) {
	var snapshot service.StateSnapshot
	err := c.getJSON("/state/"+subject, &snapshot)
	return snapshot, err
}

// History queries GET /history/{id}.
func (c *ProbeClient) History(subject string) ([]service.HistoryEntry, error) {
	var history []service.HistoryEntry
	err := c.getJSON("/history/"+subject, &history)
	return history, err
}

func (c *ProbeClient) getJSON(path string, out interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("GET %s: %w", path, service.ErrUnknownSubject)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned HTTP %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: malformed response: %w", path, err)
	}
	return nil
}

// ResetUser removes one subject's records through DELETE /user/{id}.
func (c *ProbeClient) ResetUser(subject string) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+"/user/"+subject, nil)
	if err != nil {
		return err
	}
	c.logger.Printf("resetting user %q", subject)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("DELETE /user/%s returned HTTP %d", subject, resp.StatusCode)
	}
	return nil
}
