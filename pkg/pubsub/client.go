// Package pubsub wraps the Pub/Sub v2 client around the ledger topic.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/partnerledger-backend/pkg/config"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
)

type Client struct {
	client  *pubsub.Client
	project string
	cfg     config.PubSubConfig
}

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopic           = errors.New("pubsub ledger topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// NewClient connects to Pub/Sub and checks the ledger topic, plus the ledger
// subscription when one is configured. PUBSUB_EMULATOR_HOST is honored by the
// underlying client.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	if strings.TrimSpace(cfg.LedgerTopic) == "" {
		return nil, errNoTopic
	}

	raw, err := pubsub.NewClient(ctx, project, credentials(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: raw, project: project, cfg: cfg}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topic":          cfg.LedgerTopic,
			"subscription":   cfg.LedgerSubscription,
			"create_missing": cfg.CreateMissing,
		}), "pubsub client initialized")
	}
	return c, nil
}

func credentials(gcp config.GCPConfig) []option.ClientOption {
	if js := strings.TrimSpace(gcp.CredentialsJSON); js != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(js))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// Ping confirms the configured resources exist, creating them first when
// CreateMissing is set.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	topic := c.topicName(c.cfg.LedgerTopic)
	if err := c.checkTopic(ctx, topic); err != nil {
		return err
	}
	if sub := c.subscriptionName(c.cfg.LedgerSubscription); sub != "" {
		return c.checkSubscription(ctx, sub, topic)
	}
	return nil
}

func (c *Client) checkTopic(ctx context.Context, name string) error {
	admin := c.client.TopicAdminClient
	_, err := admin.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	if status.Code(err) == codes.NotFound && c.cfg.CreateMissing {
		_, err = admin.CreateTopic(ctx, &pubsubpb.Topic{Name: name})
		if status.Code(err) == codes.AlreadyExists {
			err = nil
		}
	}
	return resourceErr("topic", name, err)
}

func (c *Client) checkSubscription(ctx context.Context, name, topic string) error {
	admin := c.client.SubscriptionAdminClient
	_, err := admin.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
	if status.Code(err) == codes.NotFound && c.cfg.CreateMissing {
		_, err = admin.CreateSubscription(ctx, &pubsubpb.Subscription{
			Name:                  name,
			Topic:                 topic,
			AckDeadlineSeconds:    30,
			EnableMessageOrdering: true,
		})
		if status.Code(err) == codes.AlreadyExists {
			err = nil
		}
	}
	return resourceErr("subscription", name, err)
}

func resourceErr(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
}

// Publisher returns a publisher for a topic id or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.topicName(name)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) topicName(id string) string {
	return qualify(c.project, "topics", id)
}

func (c *Client) subscriptionName(id string) string {
	return qualify(c.project, "subscriptions", id)
}

// qualify expands a short id to projects/<project>/<collection>/<id>.
// Names already qualified for that collection pass through.
func qualify(project, collection, id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if strings.HasPrefix(id, "projects/") && strings.Contains(id, "/"+collection+"/") {
		return id
	}
	if project = strings.TrimSpace(project); project == "" {
		return ""
	}
	return "projects/" + project + "/" + collection + "/" + id
}
