package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"bbsharvest/internal/models"
	"bbsharvest/pkg/utils"
)

// descriptionWidth bounds the description column of the targets table.
const descriptionWidth = 40

var summaryHeader = []string{
	"Target", "Pages", "Failed", "Malformed", "Items", "Kept", "Duplicates", "Too old", "Stop", "Took",
}

// WriteRun prints a run report.
func WriteRun(w io.Writer, r *models.RunReport) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Run %s (%s) started %s\n", r.RunID, r.Mode, r.StartedAt.Local().Format(time.DateTime))

	if !r.Since.IsZero() {
		fmt.Fprintf(&b, "Records updated after %s (%s)\n", r.Since.Local().Format(time.DateTime), humanize.Time(r.Since))
	}

	b.WriteString("\n")

	rows := make([][]string, 0, len(r.Targets))
	for _, s := range r.Targets {
		rows = append(rows, []string{
			s.Target,
			count(s.PagesFetched),
			count(s.PagesFailed),
			count(s.PagesMalformed),
			count(s.RawRecords),
			count(s.Accepted),
			count(s.Duplicates),
			count(s.TimeFiltered),
			string(s.StopReason),
			s.Duration.Round(time.Millisecond).String(),
		})
	}

	for _, line := range RenderTable(summaryHeader, rows) {
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "New records: %s\n", count(r.NewRecords))

	if r.CorpusSize >= 0 {
		fmt.Fprintf(&b, "Corpus size: %s\n", count(r.CorpusSize))
	}

	if r.HistorySaved {
		b.WriteString("Crawl history updated\n")
	}

	if len(r.Files) > 0 {
		b.WriteString("Files:\n")

		for _, path := range r.Files {
			fmt.Fprintf(&b, "  %s (%s)\n", path, fileSize(path))
		}
	}

	fmt.Fprintf(&b, "Finished in %s\n", r.Duration.Round(time.Millisecond))

	_, err := io.WriteString(w, b.String())

	return err
}

// WriteTargets prints the registered targets, marking the current one.
func WriteTargets(w io.Writer, targets []models.CrawlTarget, current string) error {
	rows := make([][]string, 0, len(targets))
	text := utils.NewStringHelper()

	for _, t := range targets {
		marker := ""
		if t.Key == current {
			marker = "*"
		}

		rows = append(rows, []string{
			marker,
			t.Key,
			t.DisplayName(),
			t.SectionID,
			t.TopicClassID,
			Truncate(text.NormalizeWhitespace(t.Description), descriptionWidth),
		})
	}

	lines := RenderTable([]string{"", "Key", "Name", "Section", "Topic class", "Description"}, rows)

	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")

	return err
}

func count(n int) string {
	return humanize.Comma(int64(n))
}

func fileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "missing"
	}

	return humanize.Bytes(uint64(info.Size()))
}
