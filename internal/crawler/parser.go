package crawler

import (
	"encoding/json"
	"errors"

	"bbsharvest/internal/models"
)

// ErrInvalidPayload indicates a response without the data.resultList container.
var ErrInvalidPayload = errors.New("payload missing data.resultList")

// Page is the structurally valid part of a payload.
type Page struct {
	Items      []json.RawMessage
	TotalCount int
	HasTotal   bool
}

// ExtractPage locates the result container of a payload. The total count is
// optional; it is accepted as a JSON number or a numeric string.
func ExtractPage(payload RawPayload) (*Page, error) {
	rawData, ok := payload["data"]
	if !ok {
		return nil, ErrInvalidPayload
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(rawData, &data); err != nil || data == nil {
		return nil, ErrInvalidPayload
	}

	rawList, ok := data["resultList"]
	if !ok {
		return nil, ErrInvalidPayload
	}

	var items []json.RawMessage
	if err := json.Unmarshal(rawList, &items); err != nil || items == nil {
		return nil, ErrInvalidPayload
	}

	page := &Page{Items: items}

	if rawTotal, ok := data["totalCount"]; ok {
		if total, ok := models.DecodeInt(rawTotal); ok && total >= 0 {
			page.TotalCount = int(total)
			page.HasTotal = true
		}
	}

	return page, nil
}

// Parser maps raw topic list items to ArticleRecords.
type Parser struct{}

// NewParser creates a new record parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse returns the records of a payload. A payload without the expected
// container yields an empty slice.
func (p *Parser) Parse(payload RawPayload) []models.ArticleRecord {
	page, err := ExtractPage(payload)
	if err != nil {
		return []models.ArticleRecord{}
	}

	return p.ParseItems(page.Items)
}

// ParseItems maps each item to a record. Items that are not JSON objects are skipped.
func (p *Parser) ParseItems(items []json.RawMessage) []models.ArticleRecord {
	records := make([]models.ArticleRecord, 0, len(items))

	for _, raw := range items {
		var item models.Fields
		if err := json.Unmarshal(raw, &item); err != nil || item == nil {
			continue
		}

		records = append(records, toRecord(item))
	}

	return records
}

func toRecord(it models.Fields) models.ArticleRecord {
	return models.ArticleRecord{
		ID:               it.String("postId"),
		Title:            it.String("title"),
		Content:          it.String("content"),
		ContentSummary:   it.String("contentSummary"),
		AuthorID:         it.String("authorId"),
		AuthorName:       it.String("nickName"),
		AuthorIcon:       it.String("authorIcon"),
		CreateTime:       it.String("createTime"),
		UpdateTime:       it.String("lastEditTime"),
		PublishTime:      it.String("dateline"),
		LastPostTime:     it.String("lastPostTime"),
		Views:            it.Int("views"),
		Replies:          it.Int("replies"),
		Comments:         it.Int("comments"),
		Likes:            it.Int("likes"),
		Favorites:        it.Int("favTimes"),
		Shares:           it.Int("shareTimes"),
		TopicID:          it.String("topicId"),
		TopicClassID:     it.String("topicClassId"),
		TopicClassName:   it.String("topicClassName"),
		SectionID:        it.String("sectionId"),
		SectionName:      it.String("sectionName"),
		SectionIcon:      it.String("sectionIcon"),
		LevelName:        it.String("levelName"),
		IsTop:            it.Flag("top"),
		IsDigest:         it.Flag("digest"),
		IsRecommend:      it.Flag("recommend"),
		IsHot:            it.Flag("hot"),
		IsQuestion:       it.Flag("isQuestion"),
		IsSolved:         it.Flag("solved"),
		IsEdited:         it.Flag("isEdited"),
		Pictures:         it.Int("pictures"),
		Attachments:      it.Int("attachments"),
		Status:           it.Int("status"),
		Tags:             listOrEmpty(it.List("topicTagInfoList")),
		UploadInfo:       listOrEmpty(it.List("uploadInfoList")),
		AdditionalOption: objectOrEmpty(it.Raw("additionalOption")),
	}
}

func listOrEmpty(items []json.RawMessage) []json.RawMessage {
	if items == nil {
		return []json.RawMessage{}
	}

	return items
}

func objectOrEmpty(raw json.RawMessage) json.RawMessage {
	if models.IsNull(raw) {
		return json.RawMessage(`{}`)
	}

	return raw
}
