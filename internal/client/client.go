// Package client HTTP клиент админской консоли для сервиса маршрутов.
//
// Client создается один раз на сессию и общий для всех вызывающих.
// К каждому запросу добавляется сохраненный bearer токен. На любой 401
// сессия очищается и управление передается на страницу входа.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// LoginPath путь, на который отправляется пользователь после 401
const LoginPath = "/login"

const (
	fallbackGenerate = "Failed to generate routes"
	fallbackDefault  = "An error occurred"
)

// ErrUnauthorized сервис ответил 401, сессия очищена
var ErrUnauthorized = errors.New("unauthorized: session cleared")

// APIError ошибка, которую видит пользователь. Err заполнен при сетевой ошибке.
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Client HTTP клиент сервиса маршрутов
type Client struct {
	baseURL        string
	auth           *AuthState
	http           *http.Client
	limiter        *rate.Limiter
	onUnauthorized func(loginPath string)
}

// Option настраивает Client
type Option func(*Client)

// WithHTTPClient подменяет http.Client
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithOnUnauthorized задает переход на страницу входа после 401
func WithOnUnauthorized(fn func(loginPath string)) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// WithRateLimit ограничивает частоту исходящих запросов
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, burst) }
}

// New создает клиент
func New(baseURL string, auth *AuthState, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		auth:           auth,
		http:           &http.Client{Timeout: 60 * time.Second},
		limiter:        rate.NewLimiter(rate.Inf, 1),
		onUnauthorized: func(string) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// GenerateWeeklyRoutes запускает генерацию маршрутов на daysAhead дней
func (c *Client) GenerateWeeklyRoutes(ctx context.Context, startDate string, daysAhead int) (*WeeklyRoutes, error) {
	body := map[string]interface{}{"start_date": startDate, "days_ahead": daysAhead}
	var out WeeklyRoutes
	if err := c.do(ctx, http.MethodPost, "/vans/generate-weekly-routes", body, &out, fallbackGenerate); err != nil {
		return nil, err
	}
	for d := range out.RoutesByDay {
		for r := range out.RoutesByDay[d].Routes {
			SortAssignments(out.RoutesByDay[d].Routes[r].Assignments)
		}
	}
	return &out, nil
}

// GetVansForDate возвращает фургоны и их расписания на дату
func (c *Client) GetVansForDate(ctx context.Context, date string) ([]Van, error) {
	var out struct {
		Vans []Van `json:"vans"`
	}
	path := "/vans?date=" + url.QueryEscape(date)
	if err := c.do(ctx, http.MethodGet, path, nil, &out, fallbackDefault); err != nil {
		return nil, err
	}
	return out.Vans, nil
}

// GetAssignments возвращает остановки расписания, отсортированные по route_sequence
func (c *Client) GetAssignments(ctx context.Context, scheduleID string) ([]Assignment, error) {
	var out struct {
		Assignments []Assignment `json:"assignments"`
	}
	path := "/vans/schedules/" + url.PathEscape(scheduleID) + "/assignments"
	if err := c.do(ctx, http.MethodGet, path, nil, &out, fallbackDefault); err != nil {
		return nil, err
	}
	SortAssignments(out.Assignments)
	return out.Assignments, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, fallback string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.auth.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Message: fallback, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		clearErr := c.auth.Clear()
		c.onUnauthorized(LoginPath)
		if clearErr != nil {
			return fmt.Errorf("%w (clear failed: %v)", ErrUnauthorized, clearErr)
		}
		return ErrUnauthorized
	}

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode >= http.StatusBadRequest || decodeErr != nil || !env.Success {
		msg := env.Message
		if msg == "" {
			msg = fallback
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
