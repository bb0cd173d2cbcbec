package models

import "time"

// CrawlHistory is the resume checkpoint of the last completed incremental run.
type CrawlHistory struct {
	LastCrawlTime time.Time `json:"last_crawl_time"`
	TotalArticles int       `json:"total_articles"`
}
