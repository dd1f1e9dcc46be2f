package push

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/foodbridge/foodbridge-backend/pkg/config"
	"github.com/foodbridge/foodbridge-backend/pkg/logger"
	"google.golang.org/api/option"
)

// FCM caps multicast sends at 500 tokens.
const maxTokensPerBatch = 500

// Message is the push payload delivered to every device of a user.
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// Result summarises a fan-out; InvalidTokens should be pruned by the caller.
type Result struct {
	Sent          int
	Failed        int
	InvalidTokens []string
}

// Sender delivers a message to a set of device tokens.
type Sender interface {
	Send(ctx context.Context, tokens []string, msg Message) (Result, error)
}

// multicaster is the subset of *messaging.Client used by FCMSender.
type multicaster interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type FCMSender struct {
	client multicaster
}

// NewSender returns an FCM sender when push is enabled, otherwise a no-op sender.
func NewSender(ctx context.Context, enabled bool, fb config.FirebaseConfig, gcp config.GCPConfig, logg *logger.Logger) (Sender, error) {
	if !enabled {
		if logg != nil {
			logg.Info(ctx, "push delivery disabled")
		}
		return NoopSender{}, nil
	}

	var opts []option.ClientOption
	switch {
	case strings.TrimSpace(fb.CredentialsFile) != "":
		opts = append(opts, option.WithCredentialsFile(fb.CredentialsFile))
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}

	var fbCfg *firebase.Config
	if project := strings.TrimSpace(gcp.ProjectID); project != "" {
		fbCfg = &firebase.Config{ProjectID: project}
	}

	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "push delivery enabled")
	}
	return &FCMSender{client: client}, nil
}

func newFCMSender(client multicaster) *FCMSender {
	return &FCMSender{client: client}
}

func (s *FCMSender) Send(ctx context.Context, tokens []string, msg Message) (Result, error) {
	var result Result
	if s == nil || s.client == nil || len(tokens) == 0 {
		return result, nil
	}

	var errs []error
	for start := 0; start < len(tokens); start += maxTokensPerBatch {
		end := min(start+maxTokensPerBatch, len(tokens))
		batch := tokens[start:end]

		resp, err := s.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens: batch,
			Notification: &messaging.Notification{
				Title: msg.Title,
				Body:  msg.Body,
			},
			Data: msg.Data,
			Android: &messaging.AndroidConfig{
				Priority: "high",
				Notification: &messaging.AndroidNotification{
					Sound: "default",
				},
			},
			APNS: &messaging.APNSConfig{
				Payload: &messaging.APNSPayload{
					Aps: &messaging.Aps{Sound: "default"},
				},
			},
		})
		if err != nil {
			result.Failed += len(batch)
			errs = append(errs, err)
			continue
		}

		result.Sent += resp.SuccessCount
		result.Failed += resp.FailureCount
		for i, r := range resp.Responses {
			if r == nil || r.Success || i >= len(batch) {
				continue
			}
			if messaging.IsUnregistered(r.Error) || messaging.IsInvalidArgument(r.Error) {
				result.InvalidTokens = append(result.InvalidTokens, batch[i])
			}
		}
	}

	return result, errors.Join(errs...)
}

// NoopSender drops every message.
type NoopSender struct{}

func (NoopSender) Send(context.Context, []string, Message) (Result, error) {
	return Result{}, nil
}
