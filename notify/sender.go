package notify

import "context"

// Sender delivers a text payload through one channel kind. The config
// map comes from the user's Channel record.
type Sender interface {
	Kind() ChannelKind
	Send(ctx context.Context, config map[string]string, content string) error
}
