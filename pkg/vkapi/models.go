package vkapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Profile is one user object. It stays untyped because features are built
// from which fields are present, not from their values.
type Profile map[string]any

// ID returns the numeric user id
func (p Profile) ID() (int64, error) {
	return toInt64(p["id"])
}

// Deactivated reports whether the account is deleted or banned. The key is
// only sent for such accounts.
func (p Profile) Deactivated() bool {
	v, ok := p["deactivated"]
	return ok && v != nil
}

// Closed reports whether the profile is private
func (p Profile) Closed() bool {
	switch v := p["is_closed"].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	default:
		return false
	}
}

// Counters returns the counters object, nil when the provider omitted it
func (p Profile) Counters() map[string]any {
	c, _ := p["counters"].(map[string]any)
	return c
}

// Item is one [id, data|false] pair from a groups or walls procedure
type Item struct {
	ID       int64
	Data     json.RawMessage
	Vanished bool
}

// UnmarshalJSON decodes the two-element array form
func (it *Item) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("item has %d elements, want 2", len(pair))
	}

	var id any
	if err := json.Unmarshal(pair[0], &id); err != nil {
		return err
	}
	n, err := toInt64(id)
	if err != nil {
		return err
	}
	it.ID = n

	data := bytes.TrimSpace(pair[1])
	if bytes.Equal(data, []byte("false")) {
		it.Vanished = true
		return nil
	}
	it.Data = data
	return nil
}

// GroupList is the groups payload for one user
type GroupList struct {
	Count int     `json:"count"`
	Items []Group `json:"items"`
}

// Group is one community the user belongs to
type Group struct {
	ID       int64  `json:"id"`
	HasPhoto int    `json:"has_photo"`
	IsClosed int    `json:"is_closed"`
	Type     string `json:"type"`
}

// Groups decodes the item data as a group list
func (it Item) Groups() (*GroupList, error) {
	var gl GroupList
	if err := json.Unmarshal(it.Data, &gl); err != nil {
		return nil, fmt.Errorf("groups of %d: %w", it.ID, err)
	}
	return &gl, nil
}

// Wall is the walls payload for one user
type Wall struct {
	Count int    `json:"count"`
	Items []Post `json:"items"`
}

// Counter is a {count: n} object attached to a post
type Counter struct {
	Count float64 `json:"count"`
}

// Post is one wall entry
type Post struct {
	ID          int64             `json:"id"`
	Text        string            `json:"text"`
	CopyHistory []json.RawMessage `json:"copy_history,omitempty"`
	Comments    *Counter          `json:"comments,omitempty"`
	Likes       *Counter          `json:"likes,omitempty"`
	Views       *Counter          `json:"views,omitempty"`
	Reposts     *Counter          `json:"reposts,omitempty"`
}

// IsRepost reports whether the post copies another one
func (p Post) IsRepost() bool {
	return p.CopyHistory != nil
}

// Wall decodes the item data as a wall
func (it Item) Wall() (*Wall, error) {
	var w Wall
	if err := json.Unmarshal(it.Data, &w); err != nil {
		return nil, fmt.Errorf("wall of %d: %w", it.ID, err)
	}
	return &w, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("not an id: %v", v)
	}
}
