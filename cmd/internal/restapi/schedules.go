package restapi

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"daycheck/cmd/internal/schedule"
	v1 "daycheck/shared/contracts/push/v1"
)

const schedulesPath = "/api/schedules/recurring"

// RecurringSchedules lists the caller's recurring schedules.
func (c *Client) RecurringSchedules(ctx context.Context) ([]schedule.RecurringSchedule, error) {
	return c.listSchedules(ctx, schedulesPath)
}

// RecurringSchedulesOn lists the schedules the backend says occur on day.
func (c *Client) RecurringSchedulesOn(ctx context.Context, day time.Time) ([]schedule.RecurringSchedule, error) {
	return c.listSchedules(ctx, schedulesPath+"/date/"+day.Format(schedule.DateLayout))
}

func (c *Client) listSchedules(ctx context.Context, path string) ([]schedule.RecurringSchedule, error) {
	body, err := c.DoRaw(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	out, err := DecodeList[schedule.RecurringSchedule](body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, path, err)
	}
	return out, nil
}

// RecurringSchedule fetches one schedule.
func (c *Client) RecurringSchedule(ctx context.Context, id v1.ID) (schedule.RecurringSchedule, error) {
	return c.scheduleItem(ctx, http.MethodGet, schedulePath(id), nil)
}

// CreateRecurringSchedule creates s after filling the creation defaults.
func (c *Client) CreateRecurringSchedule(ctx context.Context, s schedule.RecurringSchedule) (schedule.RecurringSchedule, error) {
	s = s.WithDefaults()
	s.ID = ""
	if err := s.Validate(); err != nil {
		return schedule.RecurringSchedule{}, err
	}
	return c.scheduleItem(ctx, http.MethodPost, schedulesPath, s)
}

// UpdateRecurringSchedule sends only the fields set in s.
func (c *Client) UpdateRecurringSchedule(ctx context.Context, id v1.ID, s schedule.RecurringSchedule) (schedule.RecurringSchedule, error) {
	s.ID = ""
	return c.scheduleItem(ctx, http.MethodPut, schedulePath(id), s)
}

// DeleteRecurringSchedule removes a schedule.
func (c *Client) DeleteRecurringSchedule(ctx context.Context, id v1.ID) error {
	_, err := c.DoRaw(ctx, http.MethodDelete, schedulePath(id), nil, nil)
	return err
}

// ScheduleExceptions lists the exception dates of a schedule.
func (c *Client) ScheduleExceptions(ctx context.Context, id v1.ID) ([]schedule.Exception, error) {
	path := schedulePath(id) + "/exceptions"
	body, err := c.DoRaw(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	out, err := DecodeList[schedule.Exception](body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, path, err)
	}
	return out, nil
}

// CreateScheduleException excludes one date from a schedule.
func (c *Client) CreateScheduleException(ctx context.Context, ex schedule.Exception) (schedule.Exception, error) {
	path := schedulesPath + "/exceptions"
	body, err := c.DoRaw(ctx, http.MethodPost, path, nil, ex)
	if err != nil {
		return schedule.Exception{}, err
	}
	out := ex
	if len(bytes.TrimSpace(body)) > 0 {
		if err := DecodeItem(body, &out); err != nil {
			return schedule.Exception{}, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, path, err)
		}
	}
	return out, nil
}

// DeleteScheduleException removes an exception.
func (c *Client) DeleteScheduleException(ctx context.Context, id v1.ID) error {
	_, err := c.DoRaw(ctx, http.MethodDelete, schedulesPath+"/exceptions/"+url.PathEscape(id.String()), nil, nil)
	return err
}

func (c *Client) scheduleItem(ctx context.Context, method, path string, in any) (schedule.RecurringSchedule, error) {
	body, err := c.DoRaw(ctx, method, path, nil, in)
	if err != nil {
		return schedule.RecurringSchedule{}, err
	}
	var out schedule.RecurringSchedule
	if err := DecodeItem(body, &out); err != nil {
		return schedule.RecurringSchedule{}, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, path, err)
	}
	return out, nil
}

func schedulePath(id v1.ID) string {
	return schedulesPath + "/" + url.PathEscape(id.String())
}
