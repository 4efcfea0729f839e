// Package chat defines the contract between the engine and the chat
// platform it mirrors content into.
package chat

import (
	"context"
	"errors"
)

// ErrMessageNotFound indicates the target message no longer exists on the
// platform (deleted by a moderator, channel pruned).
var ErrMessageNotFound = errors.New("chat message not found")

// Message is the platform-agnostic content of one mirrored message.
type Message struct {
	Content  string
	ImageURL string
}

// Surface is a channel-addressed message store: the engine posts, edits and
// deletes messages through it without knowing the platform.
type Surface interface {
	Post(ctx context.Context, channelID string, msg Message) (messageID string, err error)
	Edit(ctx context.Context, channelID, messageID string, msg Message) error
	Delete(ctx context.Context, channelID, messageID string) error
}
