package optimistic

import "discussfront/internal/model"

// Patch describes a speculative change. It must return a new comment and leave
// its argument untouched; id, post and children must be preserved.
type Patch func(*model.Comment) *model.Comment

// ToggleVote flips the viewer's upvote and adjusts the score by one.
func ToggleVote(c *model.Comment) *model.Comment {
	cp := c.Clone()
	if cp.Upvoted {
		cp.Score--
	} else {
		cp.Score++
	}
	cp.Upvoted = !cp.Upvoted
	return cp
}

// ToggleSubscribe flips the viewer's reply subscription.
func ToggleSubscribe(c *model.Comment) *model.Comment {
	cp := c.Clone()
	cp.Subscribed = !cp.Subscribed
	return cp
}

// Remove hides the comment by moderation. Replies stay in place.
func Remove(c *model.Comment) *model.Comment {
	cp := c.Clone()
	cp.Removed = true
	cp.Approved = false
	return cp
}

// Delete marks the comment as deleted by its author.
func Delete(c *model.Comment) *model.Comment {
	cp := c.Clone()
	cp.Deleted = true
	return cp
}

// Moderation is a moderator's patch. Nil fields are left as they are.
type Moderation struct {
	Approved *bool
	Removed  *bool
}

// Patch returns the speculative change for m. Approving a comment without
// saying otherwise also restores it.
func (m Moderation) Patch() Patch {
	return func(c *model.Comment) *model.Comment {
		cp := c.Clone()
		if m.Approved != nil {
			cp.Approved = *m.Approved
			if *m.Approved && m.Removed == nil {
				cp.Removed = false
			}
		}
		if m.Removed != nil {
			cp.Removed = *m.Removed
		}
		return cp
	}
}
