package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"daycheck/cmd/internal/schedule"
)

func TestCreateRecurringSchedule_AppliesDefaults(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		sent map[string]any
	)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/schedules/recurring" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&sent)
		mu.Unlock()
		_, _ = io.WriteString(w, `{"data":{"id":9,"content":"Gym","patternType":"DAILY"}}`)
	}))

	got, err := c.CreateRecurringSchedule(context.Background(), schedule.RecurringSchedule{
		Content:   "Gym",
		StartDate: "2024-01-01T09:00",
		EndDate:   "2024-01-31T10:00",
	})
	if err != nil {
		t.Fatalf("CreateRecurringSchedule: %v", err)
	}
	if got.ID != "9" {
		t.Fatalf("created=%+v", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if sent["patternType"] != "DAILY" || sent["interval"] != float64(1) || sent["priority"] != "medium" {
		t.Fatalf("request body=%v", sent)
	}
}

func TestCreateRecurringSchedule_InvalidIsNotSent(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	}))

	_, err := c.CreateRecurringSchedule(context.Background(), schedule.RecurringSchedule{Content: "no dates"})
	if !errors.Is(err, schedule.ErrInvalid) {
		t.Fatalf("err=%v want=%v", err, schedule.ErrInvalid)
	}
}

func TestUpdateRecurringSchedule_OmitsUnsetFields(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		sent map[string]any
	)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/schedules/recurring/3" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&sent)
		mu.Unlock()
		_, _ = io.WriteString(w, `{"id":"3","content":"Renamed"}`)
	}))

	if _, err := c.UpdateRecurringSchedule(context.Background(), "3", schedule.RecurringSchedule{Content: "Renamed"}); err != nil {
		t.Fatalf("UpdateRecurringSchedule: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(sent) != 1 || sent["content"] != "Renamed" {
		t.Fatalf("request body=%v want only content", sent)
	}
}

func TestRecurringSchedulesOn_FormatsDate(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/schedules/recurring/date/2024-02-29" {
			t.Errorf("path=%s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `[{"id":1,"content":"Leap"}]`)
	}))

	got, err := c.RecurringSchedulesOn(context.Background(), time.Date(2024, 2, 29, 15, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("RecurringSchedulesOn: %v", err)
	}
	if len(got) != 1 || got[0].Content != "Leap" {
		t.Fatalf("got=%+v", got)
	}
}
