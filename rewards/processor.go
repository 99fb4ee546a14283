package rewards

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ynaut/reward-ledger/ledger"
)

// Processor applies engagement actions to the ledger.
type Processor struct {
	core     *ledger.Core
	schedule Schedule
}

// NewProcessor creates a processor paying rewards from schedule.
func NewProcessor(core *ledger.Core, schedule Schedule) *Processor {
	return &Processor{core: core, schedule: schedule}
}

// Schedule returns the active reward schedule.
func (p *Processor) Schedule() Schedule { return p.schedule }

// =============================================================================
// LIKES
// =============================================================================

// ToggleLike flips the (user, target) like. Only the transition into liked
// pays; a super-like additionally spends one super-like first. Unliking
// ignores super.
func (p *Processor) ToggleLike(ctx context.Context, user ledger.UserID, target ledger.TargetID, super bool) (LikeResult, error) {
	if strings.TrimSpace(string(target)) == "" {
		return LikeResult{}, fmt.Errorf("%w: target is required", ErrInvalidContent)
	}

	var (
		liked bool
		count int
	)
	res, err := p.core.Transact(ctx, user, func(tx *ledger.Tx) error {
		var err error
		if liked, err = p.toggleLike(tx, target, super); err != nil {
			return err
		}
		count, err = tx.Store().CountLikes(tx.Context(), target)
		return err
	})
	if err != nil {
		return LikeResult{}, err
	}

	return LikeResult{
		Result:     res,
		TargetID:   target,
		Liked:      liked,
		Super:      liked && super,
		LikesCount: count,
	}, nil
}

// toggleLike reports whether the target ends up liked.
func (p *Processor) toggleLike(tx *ledger.Tx, target ledger.TargetID, super bool) (bool, error) {
	has, err := tx.Liked(target)
	if err != nil {
		return false, err
	}
	if has {
		return false, tx.Unlike(target)
	}

	if super {
		if err := tx.ConsumeSuperLike(string(target)); err != nil {
			return false, err
		}
	}
	if err := tx.Credit(p.schedule.Reward(ActionLike), ledger.ReasonLike, string(target)); err != nil {
		return false, err
	}
	return true, tx.Like(target, super)
}

// =============================================================================
// SUBSCRIPTIONS AND VIEWS
// =============================================================================

// ToggleSubscription flips the user's membership of a channel. Neither
// direction pays.
func (p *Processor) ToggleSubscription(ctx context.Context, user ledger.UserID, channelID string) (SubscriptionResult, error) {
	if strings.TrimSpace(channelID) == "" {
		return SubscriptionResult{}, fmt.Errorf("%w: channel id is required", ErrInvalidContent)
	}

	out := SubscriptionResult{ChannelID: channelID}
	_, err := p.withContent(ctx, user, func(tx *ledger.Tx, cs ContentStore) error {
		ctx, uid := tx.Context(), string(user)

		sub, err := cs.IsSubscribed(ctx, channelID, uid)
		if err != nil {
			return err
		}
		if sub {
			err = cs.Unsubscribe(ctx, channelID, uid)
		} else {
			err = cs.Subscribe(ctx, channelID, uid, tx.Now())
		}
		if err != nil {
			return err
		}
		out.Subscribed = !sub
		out.SubscribersCount, err = cs.CountSubscribers(ctx, channelID)
		return err
	})
	if err != nil {
		return SubscriptionResult{}, err
	}
	return out, nil
}

// ViewStory counts the user's view of a live story once. Views pay nothing.
func (p *Processor) ViewStory(ctx context.Context, user ledger.UserID, storyID string) (StoryViewResult, error) {
	if strings.TrimSpace(storyID) == "" {
		return StoryViewResult{}, fmt.Errorf("%w: story id is required", ErrInvalidContent)
	}

	out := StoryViewResult{StoryID: storyID}
	_, err := p.withContent(ctx, user, func(tx *ledger.Tx, cs ContentStore) error {
		first, err := cs.ViewStory(tx.Context(), storyID, string(user), tx.Now())
		if err != nil {
			return err
		}
		out.FirstView = first
		out.ViewsCount, err = cs.CountStoryViews(tx.Context(), storyID)
		return err
	})
	if err != nil {
		return StoryViewResult{}, err
	}
	return out, nil
}

// =============================================================================
// CONTENT CREATION
// =============================================================================

// CreatePost writes a post and credits its reward atomically.
func (p *Processor) CreatePost(ctx context.Context, user ledger.UserID, in PostInput) (Created, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return Created{}, fmt.Errorf("%w: post content is required", ErrInvalidContent)
	}

	post := Post{
		ID:        uuid.NewString(),
		UserID:    string(user),
		Content:   content,
		ChannelID: in.ChannelID,
		MediaURL:  in.MediaURL,
		MediaType: in.MediaType,
	}
	res, err := p.create(ctx, user, ActionPost, post.ID, func(ctx context.Context, cs ContentStore, now time.Time) error {
		post.CreatedAt = now
		return cs.CreatePost(ctx, post)
	})
	if err != nil {
		return Created{}, err
	}
	res.Post = &post
	return res, nil
}

// CreateComment writes a comment on an existing post and credits its reward.
func (p *Processor) CreateComment(ctx context.Context, user ledger.UserID, postID, body string) (Created, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Created{}, fmt.Errorf("%w: comment body is required", ErrInvalidContent)
	}
	if postID == "" {
		return Created{}, fmt.Errorf("%w: post id is required", ErrInvalidContent)
	}

	c := Comment{
		ID:     uuid.NewString(),
		PostID: postID,
		UserID: string(user),
		Body:   body,
	}
	res, err := p.create(ctx, user, ActionComment, c.ID, func(ctx context.Context, cs ContentStore, now time.Time) error {
		c.CreatedAt = now
		return cs.CreateComment(ctx, c)
	})
	if err != nil {
		return Created{}, err
	}
	res.Comment = &c
	return res, nil
}

// CreateStory writes a story that expires after the schedule's TTL.
func (p *Processor) CreateStory(ctx context.Context, user ledger.UserID, in StoryInput) (Created, error) {
	if in.MediaURL == "" || in.MediaType == "" {
		return Created{}, fmt.Errorf("%w: story needs media_url and media_type", ErrInvalidContent)
	}

	s := Story{
		ID:        uuid.NewString(),
		UserID:    string(user),
		MediaURL:  in.MediaURL,
		MediaType: in.MediaType,
	}
	res, err := p.create(ctx, user, ActionStory, s.ID, func(ctx context.Context, cs ContentStore, now time.Time) error {
		s.CreatedAt = now
		s.ExpiresAt = now.Add(p.schedule.StoryTTL)
		return cs.CreateStory(ctx, s)
	})
	if err != nil {
		return Created{}, err
	}
	res.Story = &s
	return res, nil
}

// CreateChannel writes a channel, subscribes its owner and credits the
// creation reward.
func (p *Processor) CreateChannel(ctx context.Context, user ledger.UserID, in ChannelInput) (Created, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Created{}, fmt.Errorf("%w: channel name is required", ErrInvalidContent)
	}

	ch := Channel{
		ID:          uuid.NewString(),
		OwnerID:     string(user),
		Name:        name,
		Description: in.Description,
		IsPrivate:   in.IsPrivate,
	}
	res, err := p.create(ctx, user, ActionChannelCreate, ch.ID, func(ctx context.Context, cs ContentStore, now time.Time) error {
		ch.CreatedAt = now
		if err := cs.CreateChannel(ctx, ch); err != nil {
			return err
		}
		return cs.Subscribe(ctx, ch.ID, ch.OwnerID, now)
	})
	if err != nil {
		return Created{}, err
	}
	res.Channel = &ch
	return res, nil
}

// create runs write and the action's credit in one ledger transaction.
func (p *Processor) create(
	ctx context.Context,
	user ledger.UserID,
	action Action,
	ref string,
	write func(context.Context, ContentStore, time.Time) error,
) (Created, error) {
	reward := p.schedule.Reward(action)

	res, err := p.withContent(ctx, user, func(tx *ledger.Tx, cs ContentStore) error {
		if err := write(tx.Context(), cs, tx.Now()); err != nil {
			return err
		}
		return tx.Credit(reward, action.Reason(), ref)
	})
	if err != nil {
		return Created{}, err
	}

	return Created{Result: res, Action: action, Reward: reward.Int64()}, nil
}

// withContent runs fn under the user's account lock with the content view
// of the transactional store.
func (p *Processor) withContent(ctx context.Context, user ledger.UserID, fn func(*ledger.Tx, ContentStore) error) (ledger.Result, error) {
	return p.core.Transact(ctx, user, func(tx *ledger.Tx) error {
		cs, ok := tx.Store().(ContentStore)
		if !ok {
			return fmt.Errorf("%w: content store", ledger.ErrStoreRequired)
		}
		return fn(tx, cs)
	})
}
