// Package publish delivers reduced statistics to a topic tree.
package publish

import "context"

// Publisher sends one payload to one topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error
	Close() error
}
