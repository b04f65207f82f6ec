package service

import (
	"context"
	"errors"
	"log/slog"

	"gocloud.dev/pubsub"
	// The in-memory driver backs tests and single-process topologies; cloud
	// drivers register themselves the same way when imported by a deployment.
	_ "gocloud.dev/pubsub/mempubsub"

	apperrors "github.com/allisson/ledgerhook/internal/errors"
)

// PubSubChannelSink publishes event payloads to named notification channels,
// each backed by a gocloud.dev pubsub topic opened from a driver URL
// (mem://..., gcppubsub://..., awssns:///..., etc).
type PubSubChannelSink struct {
	topics map[string]*pubsub.Topic
	logger *slog.Logger
}

// NewPubSubChannelSink opens one topic per configured channel.
func NewPubSubChannelSink(
	ctx context.Context,
	channelURLs map[string]string,
	logger *slog.Logger,
) (*PubSubChannelSink, error) {
	topics := make(map[string]*pubsub.Topic, len(channelURLs))
	for name, url := range channelURLs {
		topic, err := pubsub.OpenTopic(ctx, url)
		if err != nil {
			// Close topics opened so far before bailing out.
			for _, opened := range topics {
				_ = opened.Shutdown(ctx)
			}
			return nil, apperrors.Wrap(err, "failed to open notification channel "+name)
		}
		topics[name] = topic
	}

	return &PubSubChannelSink{topics: topics, logger: logger}, nil
}

// Publish sends one message to a named channel. An unknown channel is a
// configuration problem, not a transient failure: it is logged and skipped so
// the event does not burn its retry budget on something a retry cannot fix.
func (s *PubSubChannelSink) Publish(
	ctx context.Context,
	channel string,
	body []byte,
	metadata map[string]string,
) error {
	topic, ok := s.topics[channel]
	if !ok {
		s.logger.Warn("skipping unknown notification channel",
			slog.String("channel", channel),
		)
		return nil
	}

	err := topic.Send(ctx, &pubsub.Message{Body: body, Metadata: metadata})
	if err != nil {
		return apperrors.Wrap(err, "failed to publish to notification channel "+channel)
	}

	return nil
}

// Channels lists the configured channel names.
func (s *PubSubChannelSink) Channels() []string {
	names := make([]string, 0, len(s.topics))
	for name := range s.topics {
		names = append(names, name)
	}
	return names
}

// Shutdown closes all topics.
func (s *PubSubChannelSink) Shutdown(ctx context.Context) error {
	var errs []error
	for name, topic := range s.topics {
		if err := topic.Shutdown(ctx); err != nil {
			errs = append(errs, apperrors.Wrap(err, "failed to shut down channel "+name))
		}
	}
	return errors.Join(errs...)
}
