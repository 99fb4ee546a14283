/*
Package rewards turns engagement actions into YN credits.

PURPOSE:
  The Engagement Processor. Every like, comment, post, story and channel
  a user creates earns a fixed reward from the Schedule. The reward and the
  underlying change (like relation row, content row) commit together
  through ledger.Core.Transact, or not at all.

ACTIONS AND DEFAULT REWARDS:
  like            5   toggle; only not_liked -> liked pays
  comment        10
  post           20
  story          15   expires after StoryTTL (24h)
  channel_create 50   owner is auto-subscribed

LIKE STATE MACHINE (per user, target):
  not_liked --toggle--> liked      credit 5, insert relation
                                   (super: consume one super-like first)
  liked     --toggle--> not_liked  remove relation, nothing else

  Earnings are sticky: unliking never claws back the credit.

UNPAID ENGAGEMENT:
  Channel subscriptions and story views are recorded under the same
  account lock but pay nothing and write no journal entry. A story view
  counts once per viewer.

CONTENT:
  Content rows are written through ContentStore on the transactional
  store handed to the Transact callback. The ledger memory store does not
  implement ContentStore; creation requires store/sqlite.

SEE ALSO:
  - processor.go: Processor implementation
  - ledger/ledger.go: Transact
*/
package rewards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ynaut/reward-ledger/ledger"
)

// =============================================================================
// ACTIONS
// =============================================================================

// Action is an engagement kind that earns YN.
type Action string

const (
	ActionLike          Action = "like"
	ActionComment       Action = "comment"
	ActionPost          Action = "post"
	ActionStory         Action = "story"
	ActionChannelCreate Action = "channel_create"
)

// Reason is the journal reason recorded for the action's credit.
func (a Action) Reason() ledger.Reason {
	switch a {
	case ActionLike:
		return ledger.ReasonLike
	case ActionComment:
		return ledger.ReasonComment
	case ActionPost:
		return ledger.ReasonPost
	case ActionStory:
		return ledger.ReasonStory
	case ActionChannelCreate:
		return ledger.ReasonChannelCreate
	}
	return ledger.Reason(a)
}

// Schedule holds the reward paid per action.
type Schedule struct {
	Like          int64
	Comment       int64
	Post          int64
	Story         int64
	ChannelCreate int64
	StoryTTL      time.Duration
}

// DefaultSchedule returns the stock reward amounts.
func DefaultSchedule() Schedule {
	return Schedule{
		Like:          5,
		Comment:       10,
		Post:          20,
		Story:         15,
		ChannelCreate: 50,
		StoryTTL:      24 * time.Hour,
	}
}

// Reward returns the credit for an action.
func (s Schedule) Reward(a Action) ledger.Amount {
	switch a {
	case ActionLike:
		return ledger.YN(s.Like)
	case ActionComment:
		return ledger.YN(s.Comment)
	case ActionPost:
		return ledger.YN(s.Post)
	case ActionStory:
		return ledger.YN(s.Story)
	case ActionChannelCreate:
		return ledger.YN(s.ChannelCreate)
	}
	return ledger.YN(0)
}

// Validate rejects non-positive rewards and TTLs.
func (s Schedule) Validate() error {
	for _, a := range []Action{ActionLike, ActionComment, ActionPost, ActionStory, ActionChannelCreate} {
		if !s.Reward(a).IsPositive() {
			return fmt.Errorf("reward for %s must be positive", a)
		}
	}
	if s.StoryTTL <= 0 {
		return fmt.Errorf("story TTL must be positive")
	}
	return nil
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidContent is returned for empty or malformed content input.
	ErrInvalidContent = errors.New("invalid content")

	ErrPostNotFound    = errors.New("post not found")
	ErrChannelNotFound = errors.New("channel not found")

	// ErrStoryNotFound covers stories that never existed and those past
	// their expiry.
	ErrStoryNotFound = errors.New("story not found")
)

// =============================================================================
// CONTENT
// =============================================================================

type Post struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	ChannelID string    `json:"channel_id,omitempty"`
	MediaURL  string    `json:"media_url,omitempty"`
	MediaType string    `json:"media_type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	UserID    string    `json:"user_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Story is a post that disappears after ExpiresAt. Its credit does not.
type Story struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	MediaURL  string    `json:"media_url"`
	MediaType string    `json:"media_type"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Channel struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsPrivate   bool      `json:"is_private"`
	CreatedAt   time.Time `json:"created_at"`
}

// ContentStore writes engagement content. Implementations must honour the
// surrounding storage transaction.
type ContentStore interface {
	CreatePost(ctx context.Context, p Post) error
	CreateComment(ctx context.Context, c Comment) error
	CreateStory(ctx context.Context, s Story) error
	CreateChannel(ctx context.Context, c Channel) error
	Subscribe(ctx context.Context, channelID, userID string, at time.Time) error
	Unsubscribe(ctx context.Context, channelID, userID string) error
	IsSubscribed(ctx context.Context, channelID, userID string) (bool, error)
	CountSubscribers(ctx context.Context, channelID string) (int, error)

	// ViewStory records a view of an unexpired story and reports whether
	// it was the viewer's first. ErrStoryNotFound otherwise.
	ViewStory(ctx context.Context, storyID, userID string, at time.Time) (bool, error)
	CountStoryViews(ctx context.Context, storyID string) (int, error)
}

// =============================================================================
// INPUTS / RESULTS
// =============================================================================

type PostInput struct {
	Content   string
	ChannelID string
	MediaURL  string
	MediaType string
}

type StoryInput struct {
	MediaURL  string
	MediaType string
}

type ChannelInput struct {
	Name        string
	Description string
	IsPrivate   bool
}

// LikeResult reports which way a toggle went. LikesCount is the target's
// total as of the commit.
type LikeResult struct {
	ledger.Result
	TargetID   ledger.TargetID `json:"target_id"`
	Liked      bool            `json:"liked"`
	Super      bool            `json:"super"`
	LikesCount int             `json:"likes_count"`
}

type SubscriptionResult struct {
	ChannelID        string `json:"channel_id"`
	Subscribed       bool   `json:"subscribed"`
	SubscribersCount int    `json:"subscribers_count"`
}

// StoryViewResult reports a view. FirstView is false for repeat views,
// which leave ViewsCount unchanged.
type StoryViewResult struct {
	StoryID    string `json:"story_id"`
	FirstView  bool   `json:"first_view"`
	ViewsCount int    `json:"views_count"`
}

// Created is returned by every content-creating action. Exactly one of the
// content pointers is set.
type Created struct {
	ledger.Result
	Action  Action   `json:"action"`
	Reward  int64    `json:"reward"`
	Post    *Post    `json:"post,omitempty"`
	Comment *Comment `json:"comment,omitempty"`
	Story   *Story   `json:"story,omitempty"`
	Channel *Channel `json:"channel,omitempty"`
}
