// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package twilioapi

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twilio/twilio-go/client"
	twilioopenapi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeUpdater struct {
	sids   []string
	params []*twilioopenapi.UpdateCallParams
	err    error
}

func (f *fakeUpdater) UpdateCall(sid string, params *twilioopenapi.UpdateCallParams) (*twilioopenapi.ApiV2010Call, error) {
	f.sids = append(f.sids, sid)
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	status := "completed"
	return &twilioopenapi.ApiV2010Call{Sid: &sid, Status: &status}, nil
}

func TestHangupCompletesCall(t *testing.T) {
	api := &fakeUpdater{}
	c := NewClient(api, zerolog.Nop())

	require.NoError(t, c.Hangup(context.Background(), "CA123"))

	require.Len(t, api.sids, 1)
	assert.Equal(t, "CA123", api.sids[0])
	require.NotNil(t, api.params[0].Status)
	assert.Equal(t, "completed", *api.params[0].Status)
}

func TestHangupIgnoresMissingCall(t *testing.T) {
	api := &fakeUpdater{err: &client.TwilioRestError{Status: 404, Code: 20404, Message: "not found"}}
	c := NewClient(api, zerolog.Nop())

	assert.NoError(t, c.Hangup(context.Background(), "CAgone"))
}

func TestHangupReportsOtherErrors(t *testing.T) {
	api := &fakeUpdater{err: errors.New("connection refused")}
	c := NewClient(api, zerolog.Nop())

	err := c.Hangup(context.Background(), "CA123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CA123")
}

func TestHangupHonorsCancelledContext(t *testing.T) {
	api := &fakeUpdater{}
	c := NewClient(api, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.Hangup(ctx, "CA123"), context.Canceled)
	assert.Empty(t, api.sids)
}
