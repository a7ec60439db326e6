package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApprovalRoundTrip(t *testing.T) {
	b := NewBroker()
	b.CreateApproval("call-1")
	defer b.CleanupApproval("call-1")

	go b.RespondApproval("call-1", Decision{Approved: true})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	decision, err := b.WaitApproval(ctx, "call-1")
	require.NoError(t, err)
	assert.True(t, decision.Approved)
}

func TestApprovalTimesOut(t *testing.T) {
	b := NewBroker()
	b.CreateApproval("call-2")
	defer b.CleanupApproval("call-2")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := b.WaitApproval(ctx, "call-2")
	assert.Error(t, err)
}

func TestApprovalResponseForUnknownIDIsDiscarded(t *testing.T) {
	b := NewBroker()
	assert.NotPanics(t, func() { b.RespondApproval("never-created", Decision{Approved: true}) })
}

func TestApprovalCleanupIsIdempotent(t *testing.T) {
	b := NewBroker()
	b.CreateApproval("call-3")
	b.CleanupApproval("call-3")
	assert.NotPanics(t, func() { b.CleanupApproval("call-3") })
}

func TestElicitationRoundTrip(t *testing.T) {
	b := NewBroker()
	b.CreateElicitation("elicit-1")
	defer b.CleanupElicitation("elicit-1")

	go b.RespondElicitation("elicit-1", ElicitationReply{Action: ElicitAccept, Data: map[string]interface{}{"x": 1}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reply, err := b.WaitElicitation(ctx, "elicit-1")
	require.NoError(t, err)
	assert.Equal(t, ElicitAccept, reply.Action)
}

func TestDuplicateResponseDropped(t *testing.T) {
	b := NewBroker()
	b.CreateApproval("call-4")
	defer b.CleanupApproval("call-4")

	b.RespondApproval("call-4", Decision{Approved: true})
	assert.NotPanics(t, func() { b.RespondApproval("call-4", Decision{Approved: false}) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	decision, err := b.WaitApproval(ctx, "call-4")
	require.NoError(t, err)
	assert.True(t, decision.Approved)
}
