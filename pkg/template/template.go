// Package template holds the catalogue of question template cards. Selecting
// a card fills the input draft with its description.
package template

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/parlor/pkg/chat"
	"github.com/papercomputeco/parlor/pkg/logger"
)

// Card is a single template card.
type Card struct {
	Icon        string `toml:"icon" json:"icon"`
	Title       string `toml:"title" json:"title"`
	Description string `toml:"description" json:"description"`
	Color       string `toml:"color" json:"color"`
}

// Input returns the draft input a selection of this card produces.
func (c Card) Input() chat.Input {
	return chat.TemplateSelection(c.Description)
}

// Defaults returns the built-in cards.
func Defaults() []Card {
	return []Card{
		{
			Icon:        "message-circle",
			Title:       "Create a ticket",
			Description: "Create a Jira ticket with priority 'high' titled 'ABC'",
			Color:       "grass",
		},
		{
			Icon:        "calculator",
			Title:       "Search tickets",
			Description: "Which tickets with priority 'Medium' are in the system?",
			Color:       "tomato",
		},
		{
			Icon:        "globe",
			Title:       "Web search",
			Description: "Search for information about Jira Query Language.",
			Color:       "blue",
		},
		{
			Icon:        "book",
			Title:       "Search documents",
			Description: "What is in file XY?",
			Color:       "amber",
		},
	}
}

type file struct {
	Templates []Card `toml:"templates"`
}

// Parse decodes a TOML catalogue of [[templates]] tables. Cards without a
// title or description are rejected.
func Parse(data []byte) ([]Card, error) {
	var f file
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	for i, c := range f.Templates {
		if strings.TrimSpace(c.Title) == "" || strings.TrimSpace(c.Description) == "" {
			return nil, fmt.Errorf("template %d: title and description are required", i)
		}
	}

	return f.Templates, nil
}

// Catalog is a concurrency-safe set of cards, optionally backed by a file.
type Catalog struct {
	mu     sync.RWMutex
	cards  []Card
	path   string
	logger *slog.Logger
}

// NewCatalog returns a catalogue holding the default cards.
func NewCatalog(l *slog.Logger) *Catalog {
	if l == nil {
		l = logger.Nop()
	}
	return &Catalog{cards: Defaults(), logger: l}
}

// Load returns a catalogue read from path. A missing file yields the
// defaults; the path is still remembered for Watch.
func Load(path string, l *slog.Logger) (*Catalog, error) {
	c := NewCatalog(l)
	c.path = path
	if path == "" {
		return c, nil
	}

	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload rereads the backing file. A missing file restores the defaults; an
// invalid one leaves the current cards untouched.
func (c *Catalog) Reload() error {
	if c.path == "" {
		return nil
	}

	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		c.set(Defaults())
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading templates: %w", err)
	}

	cards, err := Parse(data)
	if err != nil {
		return err
	}
	if len(cards) == 0 {
		cards = Defaults()
	}

	c.set(cards)
	c.logger.Debug("templates loaded", "path", c.path, "count", len(cards))
	return nil
}

func (c *Catalog) set(cards []Card) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cards = cards
}

// Cards returns a copy of the current cards.
func (c *Catalog) Cards() []Card {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Card, len(c.cards))
	copy(out, c.cards)
	return out
}

// Find returns the card with the given title, ignoring case.
func (c *Catalog) Find(title string) (Card, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, card := range c.cards {
		if strings.EqualFold(card.Title, strings.TrimSpace(title)) {
			return card, true
		}
	}
	return Card{}, false
}

// Path returns the backing file, if any.
func (c *Catalog) Path() string {
	return c.path
}
