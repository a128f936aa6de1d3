// Package models defines the core domain entities for the unrestwatch pipeline.
// These models represent ingested social posts, their sentiment and risk scores,
// early warnings, and the monthly report assembled from scored batches.
// All ingestible models include built-in validation to ensure data integrity.
//
// Terminology:
//   - Post: a single free-text social media record, immutable once ingested.
//   - ScoredPost: a Post plus its sentiment, conflict intensity, and risk level.
//   - Warning: a rule-triggered alert produced by the early-warning detector.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
)

// Post is a single ingested social media record.
// Timestamp is the zero time when the source record carried no parseable date.
type Post struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	Timestamp     time.Time `json:"timestamp"`
	Region        string    `json:"region,omitempty"`
	UserLocation  *string   `json:"user_location,omitempty"`
	RetweetCount  int       `json:"retweet_count"`
	FavoriteCount int       `json:"favorite_count"`
}

// HasTimestamp reports whether the post carries a usable date.
func (p *Post) HasTimestamp() bool {
	return !p.Timestamp.IsZero()
}

// Validate checks that all post fields are valid
func (p *Post) Validate() error {
	if p.ID == "" {
		return errors.New("post ID must not be empty")
	}
	if p.RetweetCount < 0 {
		return errors.New("retweet count must not be negative")
	}
	if p.FavoriteCount < 0 {
		return errors.New("favorite count must not be negative")
	}
	return nil
}

// postNamespace scopes ids derived from post content.
var postNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("unrestwatch/post"))

// PostInput is the scoring input record as received from collaborators.
// Optional fields may be omitted; counts default to 0.
type PostInput struct {
	ID            *string `json:"id,omitempty"`
	Text          any     `json:"text"`
	Region        *string `json:"region,omitempty"`
	Timestamp     *string `json:"timestamp,omitempty"`
	UserLocation  *string `json:"user_location,omitempty"`
	RetweetCount  *int    `json:"retweet_count,omitempty"`
	FavoriteCount *int    `json:"favorite_count,omitempty"`
}

// ToPost converts an input record into a Post. Non-string text becomes empty
// text. A malformed timestamp leaves the post undated and is reported through
// the returned error so the caller can log it; the post itself is always usable.
//
// The post keeps the source id when one is given. A dated record without an
// id gets an id derived from its text, timestamp, region and user location,
// so a record delivered twice maps to the same post. Undated records without
// an id get a random id.
func (in PostInput) ToPost() (Post, error) {
	post := Post{
		ID:           in.postID(),
		UserLocation: in.UserLocation,
	}
	if s, ok := in.Text.(string); ok {
		post.Text = s
	}
	if in.Region != nil {
		post.Region = *in.Region
	}
	if in.RetweetCount != nil && *in.RetweetCount > 0 {
		post.RetweetCount = *in.RetweetCount
	}
	if in.FavoriteCount != nil && *in.FavoriteCount > 0 {
		post.FavoriteCount = *in.FavoriteCount
	}

	if in.Timestamp == nil || strings.TrimSpace(*in.Timestamp) == "" {
		return post, nil
	}
	ts, err := ParseTimestamp(*in.Timestamp)
	if err != nil {
		return post, err
	}
	post.Timestamp = ts
	return post, nil
}

func (in PostInput) postID() string {
	if in.ID != nil && strings.TrimSpace(*in.ID) != "" {
		return strings.TrimSpace(*in.ID)
	}
	if in.Timestamp == nil || strings.TrimSpace(*in.Timestamp) == "" {
		return uuid.New().String()
	}
	text, _ := in.Text.(string)
	var b strings.Builder
	for _, part := range []string{text, strings.TrimSpace(*in.Timestamp), deref(in.Region), deref(in.UserLocation)} {
		b.WriteString(part)
		b.WriteByte(0)
	}
	return uuid.NewSHA1(postNamespace, []byte(b.String())).String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ParseTimestamp parses ISO-8601 and the other common date layouts seen in
// exported social media data. Times without a zone are taken as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	ts, err := dateparse.ParseIn(strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", raw, err)
	}
	return ts, nil
}
