package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/ynaut/reward-ledger/rewards"
)

var _ rewards.ContentStore = (*Store)(nil)

// =============================================================================
// CONTENT - Rows whose creation is paid for by the Engagement Processor
// =============================================================================

func (q *queries) CreatePost(ctx context.Context, p rewards.Post) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO posts (id, user_id, content, channel_id, media_url, media_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.UserID, p.Content, nullString(p.ChannelID), nullString(p.MediaURL),
		nullString(p.MediaType), formatTime(p.CreatedAt))
	if isForeignKeyError(err) {
		return fmt.Errorf("%w: %s", rewards.ErrChannelNotFound, p.ChannelID)
	}
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

func (q *queries) CreateComment(ctx context.Context, c rewards.Comment) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO comments (id, post_id, user_id, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.PostID, c.UserID, c.Body, formatTime(c.CreatedAt))
	if isForeignKeyError(err) {
		return fmt.Errorf("%w: %s", rewards.ErrPostNotFound, c.PostID)
	}
	if err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

func (q *queries) CreateStory(ctx context.Context, s rewards.Story) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO stories (id, user_id, media_url, media_type, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ID, s.UserID, s.MediaURL, s.MediaType, formatTime(s.CreatedAt), formatTime(s.ExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to create story: %w", err)
	}
	return nil
}

func (q *queries) CreateChannel(ctx context.Context, c rewards.Channel) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO channels (id, owner_id, name, description, is_private, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.OwnerID, c.Name, nullString(c.Description), boolInt(c.IsPrivate), formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}
	return nil
}

func (q *queries) Subscribe(ctx context.Context, channelID, userID string, at time.Time) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO channel_subscriptions (channel_id, user_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT(channel_id, user_id) DO NOTHING
	`, channelID, userID, formatTime(at))
	if isForeignKeyError(err) {
		return fmt.Errorf("%w: %s", rewards.ErrChannelNotFound, channelID)
	}
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	return nil
}

func (q *queries) Unsubscribe(ctx context.Context, channelID, userID string) error {
	_, err := q.q.ExecContext(ctx,
		`DELETE FROM channel_subscriptions WHERE channel_id = ? AND user_id = ?`,
		channelID, userID)
	if err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	return nil
}

// ViewStory inserts the (story, viewer) row unless it exists. Stories past
// expires_at are treated as gone even before the sweeper deletes them.
func (q *queries) ViewStory(ctx context.Context, storyID, userID string, at time.Time) (bool, error) {
	var live int
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM stories WHERE id = ? AND expires_at > ?`,
		storyID, formatTime(at)).Scan(&live)
	if err != nil {
		return false, fmt.Errorf("failed to look up story: %w", err)
	}
	if live == 0 {
		return false, fmt.Errorf("%w: %s", rewards.ErrStoryNotFound, storyID)
	}

	res, err := q.q.ExecContext(ctx, `
		INSERT INTO story_views (story_id, user_id, viewed_at) VALUES (?, ?, ?)
		ON CONFLICT(story_id, user_id) DO NOTHING
	`, storyID, userID, formatTime(at))
	if err != nil {
		return false, fmt.Errorf("failed to record story view: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// =============================================================================
// READ PATHS
// =============================================================================

// GetPost returns a post by id.
func (q *queries) GetPost(ctx context.Context, id string) (*rewards.Post, error) {
	var (
		p                          rewards.Post
		channel, mediaURL, mediaTy nullableString
		created                    string
	)
	err := q.q.QueryRowContext(ctx, `
		SELECT id, user_id, content, channel_id, media_url, media_type, created_at
		FROM posts WHERE id = ?
	`, id).Scan(&p.ID, &p.UserID, &p.Content, &channel, &mediaURL, &mediaTy, &created)
	if err != nil {
		return nil, err
	}
	p.ChannelID = string(channel)
	p.MediaURL = string(mediaURL)
	p.MediaType = string(mediaTy)
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &p, nil
}

// CountComments returns how many comments a post has.
func (q *queries) CountComments(ctx context.Context, postID string) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `SELECT COUNT(1) FROM comments WHERE post_id = ?`, postID).Scan(&n)
	return n, err
}

// IsSubscribed reports channel membership.
func (q *queries) IsSubscribed(ctx context.Context, channelID, userID string) (bool, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM channel_subscriptions WHERE channel_id = ? AND user_id = ?`,
		channelID, userID).Scan(&n)
	return n > 0, err
}

// CountSubscribers returns a channel's member count.
func (q *queries) CountSubscribers(ctx context.Context, channelID string) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM channel_subscriptions WHERE channel_id = ?`, channelID).Scan(&n)
	return n, err
}

// CountStoryViews returns how many distinct users viewed a story.
func (q *queries) CountStoryViews(ctx context.Context, storyID string) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM story_views WHERE story_id = ?`, storyID).Scan(&n)
	return n, err
}

// ActiveStories returns stories that have not expired at now, newest first.
func (q *queries) ActiveStories(ctx context.Context, now time.Time) ([]rewards.Story, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, user_id, media_url, media_type, created_at, expires_at
		FROM stories WHERE expires_at > ?
		ORDER BY created_at DESC
	`, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to query stories: %w", err)
	}
	defer rows.Close()

	var out []rewards.Story
	for rows.Next() {
		var s rewards.Story
		var created, expires string
		if err := rows.Scan(&s.ID, &s.UserID, &s.MediaURL, &s.MediaType, &created, &expires); err != nil {
			return nil, fmt.Errorf("failed to scan story: %w", err)
		}
		if s.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("failed to scan story: %w", err)
		}
		if s.ExpiresAt, err = parseTime(expires); err != nil {
			return nil, fmt.Errorf("failed to scan story: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteExpiredStories removes stories past their expiry. The credits paid
// for them stay in the journal.
func (q *queries) DeleteExpiredStories(ctx context.Context, now time.Time) (int64, error) {
	res, err := q.q.ExecContext(ctx, `DELETE FROM stories WHERE expires_at <= ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired stories: %w", err)
	}
	return res.RowsAffected()
}

// nullableString scans NULL as "".
type nullableString string

func (n *nullableString) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*n = ""
	case string:
		*n = nullableString(v)
	case []byte:
		*n = nullableString(v)
	default:
		return fmt.Errorf("unsupported type %T", src)
	}
	return nil
}
