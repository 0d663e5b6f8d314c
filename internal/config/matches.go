package config

import (
	"context"
	"fmt"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/rankd/internal/domain/model"
)

// MatchRecord is one entry of a match file.
//
//	matches:
//	  - id: m-1
//	    participant: alice
//	    opponent: bob
//	    score: 1
//	    ts: 2024-03-01T18:00:00Z
type MatchRecord struct {
	ID          string    `koanf:"id"`
	Participant string    `koanf:"participant"`
	Opponent    string    `koanf:"opponent"`
	Score       float64   `koanf:"score"`
	TS          time.Time `koanf:"ts"`
}

// Match converts the record to the domain model.
func (r MatchRecord) Match() model.Match {
	return model.Match{
		MatchID:       r.ID,
		ParticipantID: r.Participant,
		OpponentID:    r.Opponent,
		Score:         r.Score,
		TS:            r.TS,
	}
}

// LoadMatches reads the matches list of a YAML match file.
func LoadMatches(_ context.Context, path string) ([]model.Match, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
	}

	var records []MatchRecord
	if err := k.UnmarshalWithConf("matches", &records, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}

	out := make([]model.Match, len(records))
	for i, r := range records {
		out[i] = r.Match()
	}
	return out, nil
}
