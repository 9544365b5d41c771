package optimistic

import "discussfront/internal/model"

// Kind is the closed set of speculative mutations.
type Kind int

const (
	KindVote Kind = iota + 1
	KindSubscribe
	KindModeration
	KindRemove
	KindDelete
	KindReply
)

func (k Kind) String() string {
	switch k {
	case KindVote:
		return "vote"
	case KindSubscribe:
		return "subscribe"
	case KindModeration:
		return "moderation"
	case KindRemove:
		return "remove"
	case KindDelete:
		return "delete"
	case KindReply:
		return "reply"
	default:
		return "unknown"
	}
}

// flight returns the kind whose single-flight slot k occupies. Kinds that
// own the same attributes share a slot, so a rollback of one can never
// overwrite a confirmed change of the other.
func (k Kind) flight() Kind {
	if k == KindRemove {
		return KindModeration
	}
	return k
}

// restore copies the attributes k owns from snapshot onto current and keeps the
// rest of current, so rolling back one kind never undoes another kind's change.
func (k Kind) restore(current, snapshot *model.Comment) *model.Comment {
	cp := current.Clone()
	switch k {
	case KindVote:
		cp.Score = snapshot.Score
		cp.Upvoted = snapshot.Upvoted
	case KindSubscribe:
		cp.Subscribed = snapshot.Subscribed
	case KindModeration, KindRemove:
		cp.Approved = snapshot.Approved
		cp.Removed = snapshot.Removed
	case KindDelete:
		cp.Deleted = snapshot.Deleted
	}
	return cp
}
