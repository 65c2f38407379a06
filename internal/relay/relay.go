// Package relay is the bridge's view of the team-chat platform: post a line
// into the linked channel, receive lines typed there. The bridge never talks
// to a platform SDK directly.
package relay

import "context"

// InboundHandler receives one platform message for the linked channel.
type InboundHandler func(authorID, authorName, text string)

type Relay interface {
	// Post publishes a bridged line attributed to the in-game author.
	Post(ctx context.Context, authorName, avatarRef, text string) error
	// OnInbound registers the handler for platform messages. One handler per
	// relay; later registrations replace earlier ones.
	OnInbound(h InboundHandler)
	Close() error
}
