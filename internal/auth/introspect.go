// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"

	"github.com/chatrelay/chatrelay/internal/logging"
	"github.com/chatrelay/chatrelay/internal/models"
)

const introspectTimeout = 10 * time.Second

// Introspector validates bearer tokens against the platform instance.
// The platform has no formal introspection endpoint, so validation uses
// the token to fetch the caller's own profile: first the profile
// endpoint to learn the username, then the user table for the full
// record, then the role assignment table for roles. Validated tokens
// are cached with a TTL.
type Introspector struct {
	instanceURL string
	client      *http.Client
	cache       *tokenCache
}

// NewIntrospector creates an Introspector for the given instance.
func NewIntrospector(instanceURL string, cacheTTL time.Duration, cacheCapacity int) *Introspector {
	return &Introspector{
		instanceURL: instanceURL,
		client:      &http.Client{Timeout: introspectTimeout},
		cache:       newTokenCache(cacheTTL, cacheCapacity),
	}
}

// Validate resolves the user behind token, consulting the cache first.
func (i *Introspector) Validate(ctx context.Context, token string) (*models.CurrentUser, error) {
	if i.instanceURL == "" {
		return nil, errors.New("instance URL is not configured")
	}
	if user, ok := i.cache.get(token); ok {
		return &user, nil
	}

	user, err := i.resolveUser(ctx, token)
	if err != nil {
		return nil, err
	}
	i.cache.set(token, *user)
	return user, nil
}

// ClearCache drops all cached tokens.
func (i *Introspector) ClearCache() {
	i.cache.clear()
}

func (i *Introspector) resolveUser(ctx context.Context, token string) (*models.CurrentUser, error) {
	userName, err := i.fetchUserName(ctx, token)
	if err != nil {
		return nil, err
	}

	record, err := i.fetchUserRecord(ctx, token, userName)
	if err != nil {
		return nil, err
	}

	// A role fetch failure downgrades to an empty role list rather than
	// rejecting the token.
	roles, err := i.fetchRoles(ctx, token, record.SysID)
	if err != nil {
		logging.Warn().Err(err).Str("user_name", userName).Msg("failed to fetch roles, proceeding without")
		roles = nil
	}
	record.Roles = roles
	return record, nil
}

func (i *Introspector) fetchUserName(ctx context.Context, token string) (string, error) {
	var body struct {
		Result struct {
			UserName string `json:"user_name"`
		} `json:"result"`
	}
	if err := i.getJSON(ctx, token, i.instanceURL+"/api/now/ui/user", nil, &body); err != nil {
		return "", err
	}
	if body.Result.UserName == "" {
		return "", errors.New("profile response carries no user_name")
	}
	return body.Result.UserName, nil
}

func (i *Introspector) fetchUserRecord(ctx context.Context, token, userName string) (*models.CurrentUser, error) {
	params := url.Values{
		"sysparm_query":  {"user_name=" + userName},
		"sysparm_fields": {"sys_id,user_name,name,email,title"},
		"sysparm_limit":  {"1"},
	}
	var body struct {
		Result []struct {
			SysID    string `json:"sys_id"`
			UserName string `json:"user_name"`
			Name     string `json:"name"`
			Email    string `json:"email"`
			Title    string `json:"title"`
		} `json:"result"`
	}
	if err := i.getJSON(ctx, token, i.instanceURL+"/api/now/table/sys_user", params, &body); err != nil {
		return nil, err
	}
	if len(body.Result) == 0 {
		return nil, fmt.Errorf("no user record found for %s", userName)
	}

	record := body.Result[0]
	user := &models.CurrentUser{
		SysID:    record.SysID,
		UserName: record.UserName,
		Name:     record.Name,
		Email:    record.Email,
		Title:    record.Title,
	}
	if user.UserName == "" {
		user.UserName = userName
	}
	return user, nil
}

func (i *Introspector) fetchRoles(ctx context.Context, token, sysID string) ([]string, error) {
	params := url.Values{
		"sysparm_query":         {"user=" + sysID + "^state=active"},
		"sysparm_fields":        {"role"},
		"sysparm_display_value": {"true"},
		"sysparm_limit":         {"100"},
	}
	var body struct {
		Result []struct {
			Role json.RawMessage `json:"role"`
		} `json:"result"`
	}
	if err := i.getJSON(ctx, token, i.instanceURL+"/api/now/table/sys_user_has_role", params, &body); err != nil {
		return nil, err
	}

	var roles []string
	for _, entry := range body.Result {
		// Role comes back as either a display-value object or a string.
		var obj struct {
			DisplayValue string `json:"display_value"`
		}
		if err := json.Unmarshal(entry.Role, &obj); err == nil && obj.DisplayValue != "" {
			roles = append(roles, obj.DisplayValue)
			continue
		}
		var plain string
		if err := json.Unmarshal(entry.Role, &plain); err == nil && plain != "" {
			roles = append(roles, plain)
		}
	}
	return roles, nil
}

func (i *Introspector) getJSON(ctx context.Context, token, endpoint string, params url.Values, out interface{}) error {
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		return fmt.Errorf("instance unreachable: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("instance returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
