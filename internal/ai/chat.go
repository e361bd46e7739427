package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmehdipour/data-moodboard/internal/model"
)

const (
	MaxChatMessages  = 30
	maxChatTurnRunes = 4000
)

var ErrInvalidMessages = errors.New("invalid messages")

// Chat proxies a conversation to the model with the mode's system prompt.
type Chat struct {
	llm     LLM
	catalog *Catalog
}

func NewChat(llm LLM, catalog *Catalog) *Chat {
	return &Chat{llm: llm, catalog: catalog}
}

// ValidateMessages checks roles and counts; only user and assistant turns are accepted.
func ValidateMessages(msgs []Message) error {
	if len(msgs) == 0 || len(msgs) > MaxChatMessages {
		return fmt.Errorf("%w: between 1 and %d messages required", ErrInvalidMessages, MaxChatMessages)
	}
	for i, m := range msgs {
		if m.Role != "user" && m.Role != "assistant" {
			return fmt.Errorf("%w: message %d has role %q", ErrInvalidMessages, i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return fmt.Errorf("%w: message %d is empty", ErrInvalidMessages, i)
		}
		if len([]rune(m.Content)) > maxChatTurnRunes {
			return fmt.Errorf("%w: message %d is too long", ErrInvalidMessages, i)
		}
	}
	if msgs[len(msgs)-1].Role != "user" {
		return fmt.Errorf("%w: last message must come from the user", ErrInvalidMessages)
	}
	return nil
}

// Reply returns the assistant's next turn. The mode's prompt is rendered without canvas context.
func (c *Chat) Reply(ctx context.Context, mode string, msgs []Message) (string, Mode, error) {
	if err := ValidateMessages(msgs); err != nil {
		return "", "", err
	}
	p := c.catalog.Get(mode)
	if p.JSON {
		p = c.catalog.Get(string(ModeChat))
	}
	system, err := p.Render(promptData(model.Canvas{}, nil))
	if err != nil {
		return "", p.Mode, err
	}
	out, err := c.llm.Complete(ctx, system, msgs, CompletionOptions{Temperature: p.Temperature})
	if err != nil {
		return "", p.Mode, fmt.Errorf("llm: %w", err)
	}
	return strings.TrimSpace(out), p.Mode, nil
}
