package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/zhouzirui/z-clinic/backend/internal/model/chat"
)

// ContentType is the media type of the line-delimited export.
const ContentType = "application/x-ndjson"

// exportLine is one line of the export.
type exportLine struct {
	Timestamp         string  `json:"timestamp"`
	UserMessage       string  `json:"user_message"`
	AssistantResponse string  `json:"assistant_response"`
	Sentiment         float64 `json:"sentiment"`
	NegativeCount     float64 `json:"negative_count"`
}

// WriteJSONL writes one JSON object per record, in order.
func WriteJSONL(w io.Writer, records []chat.TurnRecord) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)

	for i, r := range records {
		line := exportLine{
			Timestamp:         r.Timestamp.UTC().Format(time.RFC3339Nano),
			UserMessage:       r.UserMessage,
			AssistantResponse: r.AssistantResponse,
			Sentiment:         r.Sentiment,
			NegativeCount:     r.NegativeCount,
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// ReadJSONL parses an export back into records tagged with sessionID. Blank
// lines are skipped.
func ReadJSONL(r io.Reader, sessionID string) ([]chat.TurnRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var records []chat.TurnRecord
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var line exportLine
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		ts, err := time.Parse(time.RFC3339Nano, line.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse timestamp: %w", lineNo, err)
		}

		records = append(records, chat.TurnRecord{
			SessionID:         sessionID,
			Timestamp:         ts.UTC(),
			UserMessage:       line.UserMessage,
			AssistantResponse: line.AssistantResponse,
			Sentiment:         line.Sentiment,
			NegativeCount:     line.NegativeCount,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	return records, nil
}

// Export writes the full transcript of sessionID to w.
func Export(ctx context.Context, store Store, sessionID string, w io.Writer) error {
	records, err := store.List(ctx, sessionID)
	if err != nil {
		return err
	}
	return WriteJSONL(w, records)
}
