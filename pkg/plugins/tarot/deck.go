package tarot

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed deck.yaml
var embeddedDeck []byte

// Card is one card of the deck.
type Card struct {
	Name        string   `yaml:"name" json:"name"`
	English     string   `yaml:"english" json:"english"`
	Emoji       string   `yaml:"emoji" json:"emoji,omitempty"`
	Arcana      string   `yaml:"-" json:"arcana"`
	Suit        string   `yaml:"-" json:"suit,omitempty"`
	Element     string   `yaml:"-" json:"element,omitempty"`
	Description string   `yaml:"description" json:"description"`
	Keywords    []string `yaml:"keywords" json:"keywords"`
}

type deckFile struct {
	Major []Card `yaml:"major"`
	Suits []struct {
		Name    string `yaml:"name"`
		English string `yaml:"english"`
		Element string `yaml:"element"`
		Cards   []struct {
			Rank        string   `yaml:"rank"`
			Description string   `yaml:"description"`
			Keywords    []string `yaml:"keywords"`
		} `yaml:"cards"`
	} `yaml:"suits"`
}

// ParseDeck decodes a deck document. Minor cards are named suit+rank.
func ParseDeck(data []byte) ([]Card, error) {
	var f deckFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse tarot deck: %w", err)
	}

	cards := make([]Card, 0, len(f.Major)+len(f.Suits)*14)
	for _, c := range f.Major {
		c.Arcana = "major"
		cards = append(cards, c)
	}
	for _, s := range f.Suits {
		for _, c := range s.Cards {
			cards = append(cards, Card{
				Name:        s.Name + c.Rank,
				English:     fmt.Sprintf("%s of %s", c.Rank, s.English),
				Arcana:      "minor",
				Suit:        s.Name,
				Element:     s.Element,
				Description: c.Description,
				Keywords:    c.Keywords,
			})
		}
	}

	if len(cards) == 0 {
		return nil, fmt.Errorf("tarot deck is empty")
	}
	seen := make(map[string]bool, len(cards))
	for _, c := range cards {
		if c.Name == "" {
			return nil, fmt.Errorf("tarot deck contains a card without a name")
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("duplicate tarot card %s", c.Name)
		}
		seen[c.Name] = true
	}
	return cards, nil
}

// LoadDeck reads deck.yaml from dir when present, otherwise the embedded deck.
func LoadDeck(dir string) ([]Card, string, error) {
	if dir != "" {
		path := filepath.Join(dir, "deck.yaml")
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			cards, err := ParseDeck(data)
			return cards, path, err
		case !os.IsNotExist(err):
			return nil, path, fmt.Errorf("read tarot deck: %w", err)
		}
	}
	cards, err := ParseDeck(embeddedDeck)
	return cards, "embedded", err
}
