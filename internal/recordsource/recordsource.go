// Package recordsource talks to the remote user collection. It fetches a
// window of records or a single record and classifies every failure as a
// transport, decode or not-found error. It neither retries nor caches.
package recordsource

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/patric-chuzhbe/userdir/internal/logger"
	"github.com/patric-chuzhbe/userdir/internal/models"
)

// ErrInvalidWindow is returned for a non-positive limit or a negative offset.
var ErrInvalidWindow = errors.New("limit must be positive and offset non-negative")

type Client struct {
	client *resty.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	return &Client{client: client}
}

// FetchPage requests up to limit records starting at offset.
func (c *Client) FetchPage(ctx context.Context, limit, offset int) ([]models.UserRecord, error) {
	if limit <= 0 || offset < 0 {
		return nil, ErrInvalidWindow
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"limit": strconv.Itoa(limit),
			"skip":  strconv.Itoa(offset),
		}).
		Get("/users")
	if err != nil {
		logger.Log.Errorw("Failed to fetch users", "error", err)
		return nil, &models.TransportError{Err: err}
	}
	if !resp.IsSuccess() {
		logger.Log.Errorw("Failed to fetch users", "status", resp.StatusCode())
		return nil, &models.TransportError{StatusCode: resp.StatusCode()}
	}

	var page models.UsersPage
	if err := json.Unmarshal(resp.Body(), &page); err != nil {
		return nil, &models.DecodeError{Err: err}
	}
	if page.Users == nil {
		return nil, &models.DecodeError{Err: errors.New(`response has no "users" array`)}
	}

	return page.Users, nil
}

// FetchByID requests the record with the given id.
func (c *Client) FetchByID(ctx context.Context, id int) (models.UserRecord, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", strconv.Itoa(id)).
		Get("/users/{id}")
	if err != nil {
		logger.Log.Errorw("Failed to fetch user", "id", id, "error", err)
		return models.UserRecord{}, &models.TransportError{Err: err}
	}
	if resp.StatusCode() == http.StatusNotFound {
		return models.UserRecord{}, &models.NotFoundError{ID: id}
	}
	if !resp.IsSuccess() {
		logger.Log.Errorw("Failed to fetch user", "id", id, "status", resp.StatusCode())
		return models.UserRecord{}, &models.TransportError{StatusCode: resp.StatusCode()}
	}

	var record models.UserRecord
	if err := json.Unmarshal(resp.Body(), &record); err != nil {
		return models.UserRecord{}, &models.DecodeError{Err: err}
	}
	if record.ID == 0 {
		return models.UserRecord{}, &models.DecodeError{Err: errors.New(`response has no "id"`)}
	}

	return record, nil
}
