package pubsub

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/partnerledger-backend/pkg/config"
)

func TestQualify(t *testing.T) {
	cases := []struct {
		project, collection, id, want string
	}{
		{"ledger-proj", "topics", "pl-ledger-events", "projects/ledger-proj/topics/pl-ledger-events"},
		{"ledger-proj", "subscriptions", " sub ", "projects/ledger-proj/subscriptions/sub"},
		{"ledger-proj", "topics", "projects/other/topics/t1", "projects/other/topics/t1"},
		{"ledger-proj", "topics", "", ""},
		{"", "topics", "t1", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, qualify(tc.project, tc.collection, tc.id), "%s/%s", tc.collection, tc.id)
	}
}

func TestNilClientIsInert(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("x"))
	assert.NoError(t, c.Close())
	assert.ErrorIs(t, c.Ping(t.Context()), errNotInitialized)
}

func TestResourceErr(t *testing.T) {
	assert.NoError(t, resourceErr("topic", "t", nil))
	assert.EqualError(t,
		resourceErr("topic", "projects/p/topics/t", status.Error(codes.NotFound, "gone")),
		`topic "projects/p/topics/t" does not exist`)

	cause := status.Error(codes.PermissionDenied, "nope")
	err := resourceErr("subscription", "s", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "checking subscription")
}

func TestCredentialsPreferInlineJSON(t *testing.T) {
	assert.Nil(t, credentials(config.GCPConfig{}))
	assert.Len(t, credentials(config.GCPConfig{CredentialsJSON: "{}", ApplicationCredentials: "/tmp/sa.json"}), 1)
	assert.Len(t, credentials(config.GCPConfig{ApplicationCredentials: "/tmp/sa.json"}), 1)
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(t.Context(), config.GCPConfig{}, config.PubSubConfig{LedgerTopic: "t"}, nil)
	assert.True(t, errors.Is(err, errProjectIDRequired))

	_, err = NewClient(t.Context(), config.GCPConfig{ProjectID: "p"}, config.PubSubConfig{}, nil)
	assert.True(t, errors.Is(err, errNoTopic))
}
