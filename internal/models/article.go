// Package models defines data structures shared by the crawler, the stores and the CLI.
package models

import "encoding/json"

// ArticleRecord is one forum post as captured from the topic list endpoint.
//
// Timestamps are kept exactly as the upstream sends them (epoch seconds or
// milliseconds rendered as decimal strings). Use crawler.ParseTimestamp to
// interpret them.
type ArticleRecord struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Content        string `json:"content"`
	ContentSummary string `json:"content_summary"`
	AuthorID       string `json:"author_id"`
	AuthorName     string `json:"author_name"`
	AuthorIcon     string `json:"author_icon"`

	CreateTime   string `json:"create_time"`
	UpdateTime   string `json:"update_time"`
	PublishTime  string `json:"publish_time"`
	LastPostTime string `json:"last_post_time"`

	Views     int64 `json:"views"`
	Replies   int64 `json:"replies"`
	Comments  int64 `json:"comments"`
	Likes     int64 `json:"likes"`
	Favorites int64 `json:"favorites"`
	Shares    int64 `json:"shares"`

	TopicID        string `json:"topic_id"`
	TopicClassID   string `json:"topic_class_id"`
	TopicClassName string `json:"topic_class_name"`
	SectionID      string `json:"section_id"`
	SectionName    string `json:"section_name"`
	SectionIcon    string `json:"section_icon"`
	LevelName      string `json:"level_name"`

	IsTop       bool `json:"is_top"`
	IsDigest    bool `json:"is_digest"`
	IsRecommend bool `json:"is_recommend"`
	IsHot       bool `json:"is_hot"`
	IsQuestion  bool `json:"is_question"`
	IsSolved    bool `json:"is_solved"`
	IsEdited    bool `json:"is_edited"`

	Pictures    int64 `json:"pictures"`
	Attachments int64 `json:"attachments"`
	Status      int64 `json:"status"`

	Tags             []json.RawMessage `json:"tags"`
	UploadInfo       []json.RawMessage `json:"upload_info"`
	AdditionalOption json.RawMessage   `json:"additional_option"`
}

// HasID reports whether the record can take part in deduplication.
func (a *ArticleRecord) HasID() bool {
	return a.ID != ""
}

// UnmarshalJSON decodes a stored record field by field so that values written
// with looser types (a numeric id, counters as strings, flags as 0/1) still load.
// List fields that are absent or null stay nil; additional_option is kept as is.
func (a *ArticleRecord) UnmarshalJSON(data []byte) error {
	var f Fields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}

	if f == nil {
		return nil
	}

	*a = ArticleRecord{
		ID:               f.String("id"),
		Title:            f.String("title"),
		Content:          f.String("content"),
		ContentSummary:   f.String("content_summary"),
		AuthorID:         f.String("author_id"),
		AuthorName:       f.String("author_name"),
		AuthorIcon:       f.String("author_icon"),
		CreateTime:       f.String("create_time"),
		UpdateTime:       f.String("update_time"),
		PublishTime:      f.String("publish_time"),
		LastPostTime:     f.String("last_post_time"),
		Views:            f.Int("views"),
		Replies:          f.Int("replies"),
		Comments:         f.Int("comments"),
		Likes:            f.Int("likes"),
		Favorites:        f.Int("favorites"),
		Shares:           f.Int("shares"),
		TopicID:          f.String("topic_id"),
		TopicClassID:     f.String("topic_class_id"),
		TopicClassName:   f.String("topic_class_name"),
		SectionID:        f.String("section_id"),
		SectionName:      f.String("section_name"),
		SectionIcon:      f.String("section_icon"),
		LevelName:        f.String("level_name"),
		IsTop:            f.Flag("is_top"),
		IsDigest:         f.Flag("is_digest"),
		IsRecommend:      f.Flag("is_recommend"),
		IsHot:            f.Flag("is_hot"),
		IsQuestion:       f.Flag("is_question"),
		IsSolved:         f.Flag("is_solved"),
		IsEdited:         f.Flag("is_edited"),
		Pictures:         f.Int("pictures"),
		Attachments:      f.Int("attachments"),
		Status:           f.Int("status"),
		Tags:             f.List("tags"),
		UploadInfo:       f.List("upload_info"),
		AdditionalOption: f.Raw("additional_option"),
	}

	return nil
}
