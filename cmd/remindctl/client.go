package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reminderengine/internal/application/dto"
	"strings"
	"time"
)

// apiClient talks to the reminder REST API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// apiError is a non-2xx API response.
type apiError struct {
	Status int
	Body   dto.ErrorResponse
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("server returned %d: %s", e.Status, e.Body.Error)
	if e.Body.Hint != "" {
		msg += " (" + e.Body.Hint + ")"
	}
	return msg
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr.Body); err != nil || apiErr.Body.Error == "" {
			apiErr.Body.Error = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) Schedule(ctx context.Context, req dto.ScheduleReminderRequest) (uint, error) {
	var resp dto.ScheduleReminderResponse
	if err := c.do(ctx, http.MethodPost, "/reminders", req, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

func (c *apiClient) List(ctx context.Context, state string) ([]dto.ReminderResponse, error) {
	path := "/reminders"
	if state != "" {
		path += "?state=" + url.QueryEscape(state)
	}
	var resp []dto.ReminderResponse
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp, err
}

func (c *apiClient) Get(ctx context.Context, id uint) (*dto.ReminderResponse, error) {
	var resp dto.ReminderResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/reminders/%d", id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) Cancel(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/reminders/%d/cancel", id), nil, nil)
}

func (c *apiClient) Acknowledge(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/reminders/%d/ack", id), nil, nil)
}

func (c *apiClient) Snooze(ctx context.Context, id uint, minutes int) (*dto.ReminderResponse, error) {
	var resp dto.ReminderResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/reminders/%d/snooze", id), dto.SnoozeRequest{Minutes: minutes}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) Delete(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/reminders/%d", id), nil, nil)
}
