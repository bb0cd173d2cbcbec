package models

import "fmt"

// DefaultBaseURL is the shared topic list endpoint.
const DefaultBaseURL = "https://www.hiascend.com/ascendgateway/ascendservice/devCenter/bbs/servlet/get-topic-list"

// CrawlTarget is one named section/topic-class pair to crawl.
type CrawlTarget struct {
	Key          string `json:"key" yaml:"key"`
	SectionID    string `json:"section_id" yaml:"section_id"`
	TopicClassID string `json:"topic_class_id" yaml:"topic_class_id"`
	Name         string `json:"name" yaml:"name"`
	Description  string `json:"description" yaml:"description"`
	BaseURL      string `json:"base_url" yaml:"base_url"`
}

// Endpoint returns the target's URL, falling back to DefaultBaseURL.
func (t CrawlTarget) Endpoint() string {
	if t.BaseURL != "" {
		return t.BaseURL
	}

	return DefaultBaseURL
}

// DisplayName returns the human-readable name, or the key when unnamed.
func (t CrawlTarget) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}

	return t.Key
}

func (t CrawlTarget) String() string {
	return fmt.Sprintf("%s(section=%s, topicClass=%s)", t.Key, t.SectionID, t.TopicClassID)
}
