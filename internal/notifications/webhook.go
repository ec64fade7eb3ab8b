package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ChunkLimit keeps webhook messages under Discord's 2000 character cap.
const ChunkLimit = 1980

type webhookSink struct {
	url        string
	client     *http.Client
	chunkDelay time.Duration
}

func (w *webhookSink) name() string { return "webhook" }

func (w *webhookSink) deliver(ctx context.Context, subject, body string) error {
	message := subject
	if body = strings.TrimSpace(body); body != "" {
		message += "\n" + body
	}
	for i, chunk := range SplitMessage(message, ChunkLimit) {
		if i > 0 && w.chunkDelay > 0 {
			select {
			case <-time.After(w.chunkDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := w.post(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (w *webhookSink) post(ctx context.Context, content string) error {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

const fence = "```"

// SplitMessage splits value on line boundaries into chunks of at most limit
// bytes. Over-long lines are cut at the last space. A code fence left open at
// the end of a chunk is closed there and reopened in the next chunk.
func SplitMessage(value string, limit int) []string {
	if limit <= len(fence)*2+2 {
		limit = ChunkLimit
	}
	// Room for the fence markers added while rebalancing.
	budget := limit - len(fence)*2 - len("diff") - 2

	var chunks []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}
	for _, line := range strings.Split(strings.TrimRight(value, "\n"), "\n") {
		line += "\n"
		if current.Len()+len(line) <= budget {
			current.WriteString(line)
			continue
		}
		flush()
		for len(line) > budget {
			cut := strings.LastIndex(line[:budget], " ")
			if cut <= 0 {
				cut = budget - 1
			}
			chunks = append(chunks, line[:cut+1])
			line = line[cut+1:]
		}
		current.WriteString(line)
	}
	flush()
	if len(chunks) == 0 {
		return []string{""}
	}

	for i := 0; i < len(chunks)-1; i++ {
		if strings.Count(chunks[i], fence)%2 == 0 {
			continue
		}
		parts := strings.Split(chunks[i], fence)
		opener := fence + "\n"
		if strings.HasPrefix(parts[len(parts)-1], "diff") {
			opener = fence + "diff\n"
		}
		chunks[i] += fence + "\n"
		chunks[i+1] = opener + chunks[i+1]
	}
	for i, chunk := range chunks {
		chunk = strings.ReplaceAll(chunk, fence+"diff\n"+fence+"\n", "")
		chunk = strings.ReplaceAll(chunk, fence+"\n"+fence+"\n", "")
		chunks[i] = strings.TrimRight(chunk, "\n")
	}
	return chunks
}
