package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"homeschool-api/core/errors"

	"golang.org/x/oauth2"
)

// oauthClient holds the OAuth2 flow shared by both adapters.
type oauthClient struct {
	name   string
	config *oauth2.Config
	client *http.Client
	now    func() time.Time
}

func (c *oauthClient) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.client)
}

func (c *oauthClient) exchange(ctx context.Context, code, codeVerifier string) (*TokenResponse, error) {
	if code == "" {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "authorization code is required", nil)
	}
	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(codeVerifier))
	}
	tok, err := c.config.Exchange(c.withHTTPClient(ctx), code, opts...)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrOAuthExchangeFailed,
			fmt.Sprintf("%s: token exchange failed: %s", c.name, describe(err)), err)
	}
	return c.toTokenResponse(tok, ""), nil
}

func (c *oauthClient) refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, errors.NewAppError(errors.ErrNoRefreshToken, "refresh token is required", nil)
	}
	tok, err := c.config.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, errors.NewAppError(errors.ErrTokenRefreshFailed,
			fmt.Sprintf("%s: token refresh failed: %s", c.name, describe(err)), err)
	}
	return c.toTokenResponse(tok, refreshToken), nil
}

func (c *oauthClient) toTokenResponse(tok *oauth2.Token, previousRefresh string) *TokenResponse {
	resp := &TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		ExpiresIn:    tok.ExpiresIn,
		Expiry:       tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		resp.Scope = scope
	}
	if resp.RefreshToken == "" {
		resp.RefreshToken = previousRefresh
	}
	if resp.Expiry.IsZero() && resp.ExpiresIn > 0 {
		resp.Expiry = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	if resp.ExpiresIn == 0 && !resp.Expiry.IsZero() {
		resp.ExpiresIn = int64(resp.Expiry.Sub(c.now()).Seconds())
	}
	return resp
}

func describe(err error) string {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode != "" {
		if retrieveErr.ErrorDescription != "" {
			return retrieveErr.ErrorCode + ": " + retrieveErr.ErrorDescription
		}
		return retrieveErr.ErrorCode
	}
	return err.Error()
}
