package pubsub

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/foodbridge/foodbridge-backend/pkg/config"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
)

const instanceSubscriptionTTL = 24 * time.Hour

var invalidSubscriptionChars = regexp.MustCompile(`[^a-zA-Z0-9\-_.~+%]+`)

type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	// subscriptions are checked on boot and on Ping.
	subscriptions []string
}

var errProjectIDRequired = errors.New("gcp project id is required")

// NewClient creates a Pub/Sub v2 client and ensures the named subscriptions exist.
// Publisher-only processes pass no subscriptions.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger, subscriptions ...string) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:    psClient,
		projectID: gcp.ProjectID,
		cfg:       cfg,
	}
	for _, name := range subscriptions {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			c.subscriptions = append(c.subscriptions, trimmed)
		}
	}

	if err := c.ensureSubscriptionsConfigured(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(ctx, "pubsub client initialized")
	}

	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	default:
		return nil
	}
}

func (c *Client) ensureSubscriptionsConfigured(ctx context.Context) error {
	for _, name := range c.subscriptions {
		if err := c.ensureSubscriptionExists(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) ensureSubscriptionExists(ctx context.Context, name string) error {
	fullName := c.subscriptionResourceName(name)
	if fullName == "" {
		return fmt.Errorf("subscription %q not configured", name)
	}

	_, err := c.client.SubscriptionAdminClient.GetSubscription(
		ctx,
		&pubsubpb.GetSubscriptionRequest{Subscription: fullName},
	)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("subscription %q does not exist", name)
		}
		return fmt.Errorf("checking subscription %q: %w", name, err)
	}

	return nil
}

// EnsureInstanceSubscription creates (or reuses) a subscription on topic that
// belongs to one process instance, so every API replica receives the whole
// change feed. Idle instance subscriptions expire on their own.
func (c *Client) EnsureInstanceSubscription(ctx context.Context, topic, base, instanceID string) (string, error) {
	name := InstanceSubscriptionName(base, instanceID)
	if name == "" {
		return "", errors.New("subscription base name is required")
	}
	topicName := c.topicResourceName(topic)
	if topicName == "" {
		return "", errors.New("topic is required")
	}

	_, err := c.client.SubscriptionAdminClient.CreateSubscription(ctx, &pubsubpb.Subscription{
		Name:                     c.subscriptionResourceName(name),
		Topic:                    topicName,
		AckDeadlineSeconds:       10,
		ExpirationPolicy:         &pubsubpb.ExpirationPolicy{Ttl: durationpb.New(instanceSubscriptionTTL)},
		MessageRetentionDuration: durationpb.New(10 * time.Minute),
		// the relay publishes with the row id as ordering key
		EnableMessageOrdering: true,
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return "", fmt.Errorf("creating subscription %q: %w", name, err)
	}
	c.subscriptions = append(c.subscriptions, name)
	return name, nil
}

// ReleaseInstanceSubscription deletes a subscription made by
// EnsureInstanceSubscription. A subscription that is already gone is not an
// error; the expiration policy covers instances that never get here.
func (c *Client) ReleaseInstanceSubscription(ctx context.Context, name string) error {
	fullName := c.subscriptionResourceName(name)
	if fullName == "" {
		return nil
	}
	err := c.client.SubscriptionAdminClient.DeleteSubscription(ctx, &pubsubpb.DeleteSubscriptionRequest{Subscription: fullName})
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("deleting subscription %q: %w", name, err)
	}
	c.subscriptions = slices.DeleteFunc(c.subscriptions, func(s string) bool { return s == name })
	return nil
}

// InstanceSubscriptionName derives the per-instance subscription ID.
func InstanceSubscriptionName(base, instanceID string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	id := invalidSubscriptionChars.ReplaceAllString(strings.TrimSpace(instanceID), "-")
	if id == "" {
		return base
	}
	name := base + "-" + id
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}

// Subscription returns a v2 Subscriber handle for the subscription name (ID or full resource name).
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := c.subscriptionResourceName(name)
	if fullName == "" {
		return nil
	}
	return c.client.Subscriber(fullName)
}

// AnalyticsSubscription returns the configured analytics subscription subscriber.
func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.AnalyticsSubscription)
}

// Publisher returns a publisher handle for the given topic ID/resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := c.topicResourceName(name)
	if fullName == "" {
		return nil
	}
	return c.client.Publisher(fullName)
}

// Ping verifies Pub/Sub connectivity by checking the tracked subscriptions exist.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	return c.ensureSubscriptionsConfigured(ctx)
}

// Close releases the Pub/Sub client resources.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) subscriptionResourceName(name string) string {
	return resourceName(c.projectID, "subscriptions", name)
}

func (c *Client) topicResourceName(name string) string {
	return resourceName(c.projectID, "topics", name)
}

func resourceName(projectID, kind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", p, kind, n)
}
