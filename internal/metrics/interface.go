package metrics

import (
	"context"
	"net/http"
)

// Collector receives pipeline events.
type Collector interface {
	LineRead()
	MalformedLine(field string)
	MessageClosed()
	Flushed(reason string, messages int)
	Published(err error)
	// Handler serves the collected metrics; nil when collection is disabled.
	Handler() http.Handler
	Serve(ctx context.Context) error
}
