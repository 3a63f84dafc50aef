// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

// Package twilioapi talks to the Twilio REST API on behalf of the voice agent.
package twilioapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	twilio "github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	twilioopenapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// CallUpdater is the subset of the Twilio REST API used to control live calls.
// *twilioopenapi.ApiService satisfies it.
type CallUpdater interface {
	UpdateCall(sid string, params *twilioopenapi.UpdateCallParams) (*twilioopenapi.ApiV2010Call, error)
}

// Client ends calls at the provider
type Client struct {
	api CallUpdater
	log zerolog.Logger
}

// NewClient creates a client on top of any CallUpdater
func NewClient(api CallUpdater, log zerolog.Logger) *Client {
	return &Client{
		api: api,
		log: log.With().Str("component", "twilio-api").Logger(),
	}
}

// NewRestClient creates a client for the real Twilio REST API
func NewRestClient(accountSID, authToken string, log zerolog.Logger) *Client {
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return NewClient(rest.Api, log)
}

// Hangup completes a call. A call Twilio no longer knows about counts as
// already hung up.
func (c *Client) Hangup(ctx context.Context, callSID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &twilioopenapi.UpdateCallParams{}
	params.SetStatus("completed")

	call, err := c.api.UpdateCall(callSID, params)
	if err != nil {
		var restErr *client.TwilioRestError
		if errors.As(err, &restErr) && restErr.Status == http.StatusNotFound {
			c.log.Debug().Str("call_sid", callSID).Msg("call already gone")
			return nil
		}
		return fmt.Errorf("hangup call %s: %w", callSID, err)
	}

	status := ""
	if call != nil && call.Status != nil {
		status = *call.Status
	}
	c.log.Info().Str("call_sid", callSID).Str("status", status).Msg("call hung up")
	return nil
}
