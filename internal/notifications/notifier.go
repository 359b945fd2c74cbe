// Package notifications carries document change notices between processes
// over Redis pub/sub.
package notifications

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"feedsync/internal/observability"

	"github.com/redis/go-redis/v9"
)

const changePrefix = "docstore:changes:"

// ChangeChannel is the channel that carries change notices for collection.
func ChangeChannel(collection string) string {
	return changePrefix + collection
}

// Notifier publishes and follows collection change notices. A Notifier
// with a nil client does nothing, so a single process runs without Redis.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishChange announces that documents in collection changed.
func (n *Notifier) PublishChange(ctx context.Context, collection string) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, ChangeChannel(collection), collection).Err()
}

// SubscribeChanges calls onChange with the collection of every change
// notice until ctx ends. It returns once the subscription is confirmed, so
// notices published after it returns are not missed.
func (n *Notifier) SubscribeChanges(ctx context.Context, onChange func(collection string)) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, changePrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe to change feed: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							observability.Logger.Error("panic in change subscriber",
								"channel", msg.Channel,
								"panic", fmt.Sprint(r),
								"stack", string(debug.Stack()),
							)
						}
					}()
					onChange(strings.TrimPrefix(msg.Channel, changePrefix))
				}()
			}
		}
	}()

	return nil
}
