package gateway

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/axelfernandes/axel/backend/internal/model/chat"
	"github.com/axelfernandes/axel/backend/internal/service/retrieval"
)

// augment injects retrieved repository context when the request names a
// repo. The query is the most recent user turn; the injection target is the
// FIRST outgoing message, which anchors the system/context framing of the
// conversation. Retrieval failure is non-fatal: the original list is sent.
func (s *Service) augment(ctx context.Context, messages []chat.Message, repo string) []chat.Message {
	if repo == "" || s.retriever == nil || len(messages) == 0 {
		return messages
	}

	query := lastUserContent(messages)
	if query == "" {
		return messages
	}

	snippets, err := s.retriever.Query(ctx, query, retrieval.DefaultTopK)
	if err != nil {
		log.Printf("[gateway] retrieval for %s failed, continuing unaugmented: %v", repo, err)
		return messages
	}
	if len(snippets) == 0 {
		return messages
	}

	augmented := make([]chat.Message, len(messages))
	copy(augmented, messages)
	augmented[0].Content = fmt.Sprintf(
		"Context:\n%s\nUser Question: %s",
		snippetBlock(snippets), augmented[0].Content,
	)
	return augmented
}

func lastUserContent(messages []chat.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == chat.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func snippetBlock(snippets []retrieval.Snippet) string {
	var b strings.Builder
	b.WriteString("Relevant code snippets from the repository:\n")
	for _, snippet := range snippets {
		fmt.Fprintf(&b, "--- %s ---\n%s\n", snippet.SourcePath, snippet.Content)
	}
	return b.String()
}
