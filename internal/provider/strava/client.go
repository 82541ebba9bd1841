// Package strava talks to a Strava-compatible OAuth and activity API.
package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"example.com/trainingsync/internal/domain"
)

const maxErrorBody = 64 << 10

// Config holds the OAuth application and endpoint settings.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	Scopes       []string
	Timeout      time.Duration
}

// Client implements domain.Provider.
type Client struct {
	oauth      *oauth2.Config
	apiBaseURL string
	httpClient *http.Client
}

// NewClient builds a client whose every provider call is bounded by cfg.Timeout.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiBaseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// AuthorizeURL returns the consent page URL carrying state.
func (c *Client) AuthorizeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("approval_prompt", "auto"))
}

// ExchangeCode trades an authorization code for a token triple and the athlete id.
func (c *Client) ExchangeCode(ctx context.Context, code string) (domain.TokenGrant, error) {
	tok, err := c.oauth.Exchange(c.withClient(ctx), code)
	if err != nil {
		return domain.TokenGrant{}, tokenError("exchange code", err)
	}
	return grantFromToken(tok), nil
}

// RefreshToken obtains a new token triple from a refresh token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (domain.TokenGrant, error) {
	src := c.oauth.TokenSource(c.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return domain.TokenGrant{}, tokenError("refresh token", err)
	}
	return grantFromToken(tok), nil
}

// ListActivities returns one page of the athlete's activities, optionally
// restricted to those started after the given time.
func (c *Client) ListActivities(ctx context.Context, accessToken string, after *time.Time, perPage int) ([]domain.Activity, error) {
	query := url.Values{}
	if after != nil {
		query.Set("after", strconv.FormatInt(after.Unix(), 10))
	}
	if perPage > 0 {
		query.Set("per_page", strconv.Itoa(perPage))
	}
	endpoint := c.apiBaseURL + "/athlete/activities"
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	client := oauth2.NewClient(c.withClient(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	client.Timeout = c.httpClient.Timeout

	resp, err := client.Do(req)
	if err != nil {
		return nil, &domain.ProviderError{Op: "list activities", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &domain.ProviderError{Op: "list activities", Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var items []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, &domain.ProviderError{Op: "decode activities", Status: resp.StatusCode, Err: err}
	}

	activities := make([]domain.Activity, 0, len(items))
	for _, raw := range items {
		activity, err := parseActivity(raw)
		if err != nil {
			return nil, &domain.ProviderError{Op: "decode activity", Status: resp.StatusCode, Err: err}
		}
		activities = append(activities, activity)
	}
	return activities, nil
}

func (c *Client) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// tokenError maps token endpoint failures. Rejected grants become
// ErrAuthentication; everything else is a provider failure.
func tokenError(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return &domain.ProviderError{Op: op, Err: err}
	}

	status := 0
	if retrieveErr.Response != nil {
		status = retrieveErr.Response.StatusCode
	}
	body := strings.TrimSpace(string(retrieveErr.Body))

	if status == http.StatusBadRequest || status == http.StatusUnauthorized || retrieveErr.ErrorCode == "invalid_grant" {
		return fmt.Errorf("%w: provider rejected grant during %s (status %d): %s", domain.ErrAuthentication, op, status, body)
	}
	return &domain.ProviderError{Op: op, Status: status, Body: body}
}

func grantFromToken(tok *oauth2.Token) domain.TokenGrant {
	grant := domain.TokenGrant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}

	switch v := tok.Extra("expires_at").(type) {
	case float64:
		grant.ExpiresAt = int64(v)
	case string:
		grant.ExpiresAt, _ = strconv.ParseInt(v, 10, 64)
	}
	if grant.ExpiresAt == 0 && !tok.Expiry.IsZero() {
		grant.ExpiresAt = tok.Expiry.Unix()
	}

	if athlete, ok := tok.Extra("athlete").(map[string]interface{}); ok {
		grant.AthleteID = idString(athlete["id"])
	}
	return grant
}

type activityPayload struct {
	ID                 json.RawMessage `json:"id"`
	Name               string          `json:"name"`
	Type               string          `json:"type"`
	SportType          string          `json:"sport_type"`
	Distance           float64         `json:"distance"`
	MovingTime         int             `json:"moving_time"`
	ElapsedTime        int             `json:"elapsed_time"`
	StartDate          time.Time       `json:"start_date"`
	AverageSpeed       float64         `json:"average_speed"`
	TotalElevationGain float64         `json:"total_elevation_gain"`
}

func parseActivity(raw json.RawMessage) (domain.Activity, error) {
	var p activityPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Activity{}, err
	}

	id := strings.Trim(string(p.ID), `"`)
	if id == "" || id == "null" {
		return domain.Activity{}, errors.New("activity without id")
	}
	if p.StartDate.IsZero() {
		return domain.Activity{}, fmt.Errorf("activity %s without start_date", id)
	}

	sport := p.Type
	if sport == "" {
		sport = p.SportType
	}

	return domain.Activity{
		ExternalID:         id,
		SportType:          sport,
		Name:               p.Name,
		DistanceMeters:     p.Distance,
		MovingTimeSeconds:  p.MovingTime,
		ElapsedTimeSeconds: p.ElapsedTime,
		StartTimestamp:     p.StartDate.UTC(),
		AverageSpeed:       p.AverageSpeed,
		ElevationGain:      p.TotalElevationGain,
		RawPayload:         append(json.RawMessage(nil), raw...),
	}, nil
}

func idString(v interface{}) string {
	switch id := v.(type) {
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case string:
		return id
	case json.Number:
		return id.String()
	default:
		return ""
	}
}
