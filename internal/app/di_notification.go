package app

import (
	"context"

	notificationService "github.com/allisson/ledgerhook/internal/notification/service"
	notificationUseCase "github.com/allisson/ledgerhook/internal/notification/usecase"
)

// ChannelSink returns the pubsub sink for notification channels.
func (c *Container) ChannelSink() (*notificationService.PubSubChannelSink, error) {
	c.channelSinkInit.Do(func() {
		sink, err := notificationService.NewPubSubChannelSink(
			context.Background(),
			c.config.NotificationChannels(),
			c.Logger(),
		)
		if err != nil {
			c.storeError("channelSink", err)
			return
		}
		c.channelSink = sink
	})
	if err := c.loadError("channelSink"); err != nil {
		return nil, err
	}
	return c.channelSink, nil
}

// NotificationUseCase returns the notification fan-out use case.
func (c *Container) NotificationUseCase() (notificationUseCase.NotificationUseCase, error) {
	c.notificationUCInit.Do(func() {
		sink, err := c.ChannelSink()
		if err != nil {
			c.storeError("notificationUseCase", err)
			return
		}
		c.notificationUC = notificationUseCase.NewNotificationUseCase(sink, c.Logger())
	})
	if err := c.loadError("notificationUseCase"); err != nil {
		return nil, err
	}
	return c.notificationUC, nil
}
