// Package bridge defines the callback contract the chat front-end
// registers with the core before enqueuing jobs (spec.md §6): sending
// messages, setting reactions, and (optionally) replying with file
// attachments. There is no chat-platform client here — only the interfaces
// the worker loop depends on and the reaction-emoji validation spec.md §6
// requires at the boundary.
package bridge

import "context"

// Sender delivers text to a chat, optionally threaded as a reply to an
// existing message (spec.md §6: "send(chat_id, text, reply_to_msg_id)").
type Sender interface {
	Send(ctx context.Context, chatID int64, text string, replyToMsgID int64) error
}

// Reactor sets or clears a reaction on a message (spec.md §6:
// "set_reaction(chat_id, msg_id, emoji | null)"). Passing emoji == ""
// clears the reaction.
type Reactor interface {
	SetReaction(ctx context.Context, chatID, msgID int64, emoji string) error
}

// Responder optionally replies with file attachments (spec.md §6:
// "respond_with_files(event, text, chat_id, msg_id)"); a bridge
// implementation that has no file-attachment capability need not satisfy it.
type Responder interface {
	RespondWithFiles(ctx context.Context, chatID, msgID int64, text string, filePaths []string) error
}

// ProjectConfig is the per-project configuration the bridge registers
// alongside its callbacks (spec.md §6).
type ProjectConfig struct {
	WorkingDirectory string
	AutoMerge        bool
}

// Reaction emojis, per spec.md §6's validated set. ReactionError ("😱") is
// the error reaction; "❌" is explicitly disallowed by the platform and has
// no constant here.
const (
	ReactionEyes      = "👀"
	ReactionHourglass = "⏳"
	ReactionThumbsUp  = "👍"
	ReactionTrophy    = "🏆"
	ReactionError     = "😱"
)

var validReactions = map[string]struct{}{
	ReactionEyes:      {},
	ReactionHourglass: {},
	ReactionThumbsUp:  {},
	ReactionTrophy:    {},
	ReactionError:     {},
}

// ValidReaction reports whether emoji is in the validated set, or is ""
// (clearing a reaction is always allowed).
func ValidReaction(emoji string) bool {
	if emoji == "" {
		return true
	}
	_, ok := validReactions[emoji]
	return ok
}

// SafeReactor wraps a Reactor and silently drops invalid emojis instead of
// forwarding them (spec.md §6: "invalid ones are filtered before sending").
type SafeReactor struct {
	Reactor Reactor
}

func (s SafeReactor) SetReaction(ctx context.Context, chatID, msgID int64, emoji string) error {
	if !ValidReaction(emoji) {
		return nil
	}
	return s.Reactor.SetReaction(ctx, chatID, msgID, emoji)
}
