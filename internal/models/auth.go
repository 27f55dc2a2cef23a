// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package models

// CurrentUser is the authenticated user attached to a request. In
// introspect mode it is built from the identity provider's user profile;
// in dev mode it is a static development user.
type CurrentUser struct {
	SysID    string   `json:"sys_id"`
	UserName string   `json:"user_name"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Title    string   `json:"title"`
	Roles    []string `json:"roles"`
}

// HasRole reports whether the user holds the given role.
func (u *CurrentUser) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
