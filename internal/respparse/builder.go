package respparse

import (
	"fmt"
	"strings"

	"github.com/groundlabs/sopqa/internal/domain"
)

// Chunk metadata types emitted by BuildVectorChunks.
const (
	TypeMainContent = "main_content"
	TypeKeyPoints   = "key_points"
	TypeTopics      = "topics"
)

// BuildVectorChunks turns a ProcessedContent into chunks ready for
// indexing. The main text is greedily word-wrapped into segments not
// exceeding chunkSize characters. When includeSummary is set and a
// summary exists, every body segment is prefixed with a summary banner.
// Key points and topics each become one additional whole chunk, tagged
// by metadata type.
func BuildVectorChunks(pc domain.ProcessedContent, chunkSize int, includeSummary bool) []domain.Chunk {
	var banner string
	if includeSummary && pc.Summary != "" {
		banner = fmt.Sprintf("[Document Summary: %s]\n\n", pc.Summary)
	}

	var chunks []domain.Chunk

	for _, body := range packWords(pc.Text, chunkSize, len(banner)) {
		chunks = append(chunks, domain.Chunk{
			Content:    banner + body,
			Source:     pc.Source,
			PageNumber: pc.PageNumber,
			Metadata: bodyMetadata(pc.Metadata, map[string]any{
				"type":        TypeMainContent,
				"has_summary": banner != "",
			}),
		})
	}

	if len(pc.KeyPoints) > 0 {
		chunks = append(chunks, domain.Chunk{
			Content:    "KEY POINTS:\n" + bulletList(pc.KeyPoints),
			Source:     pc.Source,
			PageNumber: pc.PageNumber,
			Metadata:   bodyMetadata(pc.Metadata, map[string]any{"type": TypeKeyPoints}),
		})
	}

	if len(pc.Topics) > 0 {
		chunks = append(chunks, domain.Chunk{
			Content:    "TOPICS COVERED:\n" + bulletList(pc.Topics),
			Source:     pc.Source,
			PageNumber: pc.PageNumber,
			Metadata:   bodyMetadata(pc.Metadata, map[string]any{"type": TypeTopics}),
		})
	}

	for i := range chunks {
		chunks[i].SequenceIndex = i
		chunks[i].SequenceTotal = len(chunks)
	}
	return chunks
}

// packWords greedily packs words into segments whose length, including
// the reserved prefix, does not exceed chunkSize. A single word longer
// than the budget still gets its own segment.
func packWords(text string, chunkSize, reserved int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var segments []string
	var current []string
	length := reserved

	for _, word := range words {
		wordLen := len(word) + 1 // trailing space
		if len(current) > 0 && length+wordLen > chunkSize {
			segments = append(segments, strings.Join(current, " "))
			current = current[:0]
			length = reserved
		}
		current = append(current, word)
		length += wordLen
	}

	if len(current) > 0 {
		segments = append(segments, strings.Join(current, " "))
	}
	return segments
}

func bulletList(items []string) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("• ")
		b.WriteString(item)
	}
	return b.String()
}

// bodyMetadata merges the record's scalar metadata under the fixed chunk
// tags. Tags win on key collision.
func bodyMetadata(recordMeta, tags map[string]any) map[string]any {
	merged := make(map[string]any, len(recordMeta)+len(tags))
	for k, v := range recordMeta {
		merged[k] = v
	}
	for k, v := range tags {
		merged[k] = v
	}
	return merged
}
