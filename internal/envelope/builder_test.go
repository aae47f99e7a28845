package envelope_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/alert-relay/internal/domain"
	"github.com/notifyhub/alert-relay/internal/envelope"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newBuilder() *envelope.Builder {
	return envelope.NewBuilder(
		envelope.WithIDFunc(func() string { return "alert-1" }),
		envelope.WithClock(func() time.Time { return fixedNow }),
	)
}

func TestBuild_Follow(t *testing.T) {
	raw := []byte(`{"broadcaster":{"user_id":555,"username":"streamer"},"follower":{"user_id":77,"username":"nova"}}`)

	a, err := newBuilder().Build(envelope.EventChannelFollowed, raw)
	require.NoError(t, err)
	require.NotNil(t, a)

	assert.Equal(t, "alert-1", a.ID)
	assert.Equal(t, domain.AlertFollow, a.Type())
	assert.Equal(t, domain.RecipientID(555), a.RecipientID)
	assert.Equal(t, domain.Follow{Username: "nova", OriginID: 77}, a.Payload)
	assert.Equal(t, fixedNow.UnixMilli(), a.CreatedAt)
}

func TestBuild_SubscriptionNew(t *testing.T) {
	raw := []byte(`{"broadcaster":{"user_id":10},"subscriber":{"user_id":3,"username":"sub1"},"duration":1}`)

	a, err := newBuilder().Build(envelope.EventSubscriptionNew, raw)
	require.NoError(t, err)
	assert.Equal(t, domain.Subscribe{Username: "sub1"}, a.Payload)
	assert.Equal(t, domain.RecipientID(10), a.RecipientID)
}

func TestBuild_SubscriptionRenewal(t *testing.T) {
	raw := []byte(`{"broadcaster":{"user_id":10},"subscriber":{"user_id":3,"username":"sub1"},"duration":6}`)

	a, err := newBuilder().Build(envelope.EventSubscriptionRenewal, raw)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionRenewal{Username: "sub1", Months: 6}, a.Payload)
}

func TestBuild_KicksGifted(t *testing.T) {
	raw := []byte(`{"broadcaster":{"user_id":10},"sender":{"user_id":4,"username":"whale"},"gift":{"amount":500,"name":"Full Send","message":"gg"}}`)

	a, err := newBuilder().Build(envelope.EventKicksGifted, raw)
	require.NoError(t, err)
	assert.Equal(t, domain.Tip{Username: "whale", Message: "gg", Amount: 500}, a.Payload)
}

func TestBuild_UnknownTypeIsNoop(t *testing.T) {
	a, err := newBuilder().Build("livestream.status.updated", []byte(`{"whatever":true}`))
	assert.NoError(t, err)
	assert.Nil(t, a)
}

func TestBuild_Malformed(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		raw       string
	}{
		{"invalid json", envelope.EventChannelFollowed, `{"broadcaster":`},
		{"missing broadcaster", envelope.EventChannelFollowed, `{"follower":{"username":"x"}}`},
		{"wrong field type", envelope.EventSubscriptionRenewal, `{"broadcaster":{"user_id":"ten"}}`},
		{"missing follower", envelope.EventChannelFollowed, `{"broadcaster":{"user_id":555}}`},
		{"empty follower username", envelope.EventChannelFollowed, `{"broadcaster":{"user_id":555},"follower":{"user_id":77,"username":""}}`},
		{"missing subscriber", envelope.EventSubscriptionNew, `{"broadcaster":{"user_id":10},"duration":1}`},
		{"missing renewal subscriber", envelope.EventSubscriptionRenewal, `{"broadcaster":{"user_id":10},"duration":6}`},
		{"missing gift sender", envelope.EventKicksGifted, `{"broadcaster":{"user_id":10},"gift":{"amount":100}}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, err := newBuilder().Build(tc.eventType, []byte(tc.raw))
			assert.Nil(t, a)
			assert.ErrorIs(t, err, domain.ErrMalformedEvent)
		})
	}
}

func TestBuild_DefaultIDsAreUnique(t *testing.T) {
	b := envelope.NewBuilder()
	raw := []byte(`{"broadcaster":{"user_id":1},"subscriber":{"username":"s"}}`)

	first, err := b.Build(envelope.EventSubscriptionNew, raw)
	require.NoError(t, err)
	second, err := b.Build(envelope.EventSubscriptionNew, raw)
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
}
