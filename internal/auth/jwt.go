// ChatRelay - Agent Chat Relay Backend
// Copyright 2026 ChatRelay Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chatrelay/chatrelay

package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chatrelay/chatrelay/internal/models"
)

// Claims are the token claims understood by the relay.
type Claims struct {
	UserName string   `json:"user_name"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Title    string   `json:"title"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256-signed bearer tokens locally.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for the given signing secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates token, returning the embedded user.
func (v *JWTVerifier) Verify(token string) (*models.CurrentUser, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("token is not valid")
	}

	userName := claims.UserName
	if userName == "" {
		userName = claims.Subject
	}
	if userName == "" {
		return nil, errors.New("token carries no user identity")
	}

	return &models.CurrentUser{
		SysID:    claims.Subject,
		UserName: userName,
		Name:     claims.Name,
		Email:    claims.Email,
		Title:    claims.Title,
		Roles:    claims.Roles,
	}, nil
}
