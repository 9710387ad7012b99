// Package ai implements the room's AI participant: mention detection,
// context assembly from recent history and nearby notes, and the completion
// request against the configured chat model.
package ai

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/gathermap/backend/internal/config"
	"github.com/gathermap/backend/internal/model/room"
)

// fallbackResponse stands in when the upstream returns an empty completion.
const fallbackResponse = "(no response)"

// Service holds the compiled completion chain and the AI participant's
// room-facing identity.
type Service struct {
	cfg     config.AIConfig
	chain   compose.Runnable[map[string]any, *schema.Message]
	mention *mentionMatcher
}

// NewService creates the chat model and compiles the prompt chain.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		cfg:     cfg,
		chain:   runnable,
		mention: newMentionMatcher(cfg.UserID),
	}, nil
}

// UserID returns the reserved id the AI participant answers to.
func (s *Service) UserID() string { return s.cfg.UserID }

// NoteRadiusM returns the nearby-note enrichment radius in metres.
func (s *Service) NoteRadiusM() float64 { return s.cfg.NoteRadiusM }

// Mentioned reports whether the text addresses the AI participant, with or
// without a leading @.
func (s *Service) Mentioned(text string) bool {
	if s.mention == nil {
		s.mention = newMentionMatcher(s.cfg.UserID)
	}
	return s.mention.Match(text)
}

// Respond runs one completion request. There is no retry and no additional
// timeout beyond what the model client applies.
func (s *Service) Respond(ctx context.Context, from, text string, history []room.ChatMessage, nearby []room.Note) (string, error) {
	input := s.buildChainInput(from, text, history, nearby)

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}

	if response.Content == "" {
		log.Printf("[ai] empty completion for user=%s, using fallback", from)
		return fallbackResponse, nil
	}

	log.Printf("[ai] generated response for user=%s, length=%d", from, len(response.Content))
	return response.Content, nil
}

func (s *Service) buildChainInput(from, text string, history []room.ChatMessage, nearby []room.Note) map[string]any {
	query := renderUserTurn(from, text)
	return map[string]any{
		"system":  s.buildSystemPrompt(from, nearby),
		"history": s.buildHistoryMessages(history, query),
		"query":   query,
	}
}

// buildSystemPrompt states the AI's identity and, when the invoking user has
// a known location, appends the notes pinned nearby.
func (s *Service) buildSystemPrompt(from string, nearby []room.Note) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a helpful participant in a shared map room. ", s.cfg.UserID)
	fmt.Fprintf(&b, "You are talking with %s and other participants. ", from)
	b.WriteString("Keep replies short and conversational; everyone in the room sees them.")

	if len(nearby) > 0 {
		b.WriteString("\n\nNotes pinned near " + from + ":")
		for _, note := range nearby {
			place := note.LocationName
			if place == "" {
				place = "unnamed"
			}
			fmt.Fprintf(&b, "\n%q (by %s at %s)", note.Text, note.Author, place)
		}
	}

	return b.String()
}

// buildHistoryMessages maps the most recent history records to chat turns.
// When the triggering message is already the tail of the window it is
// dropped, since the template appends the query as the final user turn.
func (s *Service) buildHistoryMessages(history []room.ChatMessage, query string) []*schema.Message {
	limit := s.cfg.HistoryLimit
	if limit < 1 {
		limit = 1
	}

	startIdx := 0
	if len(history) > limit {
		startIdx = len(history) - limit
	}
	window := history[startIdx:]

	out := make([]*schema.Message, 0, len(window))
	for _, m := range window {
		if m.From == s.cfg.UserID {
			out = append(out, schema.AssistantMessage(m.Text, nil))
		} else {
			out = append(out, schema.UserMessage(renderUserTurn(m.From, m.Text)))
		}
	}

	if n := len(out); n > 0 && out[n-1].Role == schema.User && out[n-1].Content == query {
		out = out[:n-1]
	}
	return out
}

func renderUserTurn(from, text string) string {
	return fmt.Sprintf("%s: %s", from, text)
}
