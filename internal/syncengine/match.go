package syncengine

import (
	"context"
	"fmt"

	"github.com/mrlokans/cardsync/internal/entities"
	"github.com/mrlokans/cardsync/internal/similarity"
	"github.com/mrlokans/cardsync/internal/transform"
)

type matchKind string

const (
	matchNone     matchKind = ""
	matchIdentity matchKind = "identity"
	matchExact    matchKind = "exact_name"
	matchFuzzy    matchKind = "fuzzy_name"
)

// resolver maps remote records to local cards for one run. Active cards of
// the mapping's type are loaded at most once. A card linked through the
// identity map, or claimed by an earlier record of the same run, is never
// offered to another record.
type resolver struct {
	store      CardStore
	matcher    *similarity.Matcher
	mapping    *entities.Mapping
	identities map[string]*entities.IdentityMapping

	loaded  bool
	cards   map[string]*entities.Card
	order   []string
	claimed map[string]bool
}

func newResolver(store CardStore, matcher *similarity.Matcher, mapping *entities.Mapping, rows []entities.IdentityMapping) *resolver {
	r := &resolver{
		store:      store,
		matcher:    matcher,
		mapping:    mapping,
		identities: make(map[string]*entities.IdentityMapping, len(rows)),
		claimed:    make(map[string]bool, len(rows)),
	}
	for i := range rows {
		r.identities[rows[i].RemoteRecordID] = &rows[i]
		r.claimed[rows[i].LocalEntityID] = true
	}
	return r
}

// resolve returns the card a record corresponds to, or nil when the record is
// new. Past the identity map, a record is matched by name only when the
// mapping flags an identity field: first an exact match on the identity
// value, then the best fuzzy match.
func (r *resolver) resolve(ctx context.Context, remoteID string, record map[string]any) (*entities.Card, matchKind, error) {
	if row, ok := r.identities[remoteID]; ok {
		card, err := r.store.GetCard(ctx, row.LocalEntityID)
		if err != nil {
			return nil, matchNone, fmt.Errorf("failed to load linked card %s: %w", row.LocalEntityID, err)
		}
		if card != nil {
			return card, matchIdentity, nil
		}
	}

	if !r.mapping.HasIdentityFields() {
		return nil, matchNone, nil
	}
	name := r.identityValue(record)
	if name == "" {
		return nil, matchNone, nil
	}

	if err := r.load(ctx); err != nil {
		return nil, matchNone, err
	}
	candidates := r.candidates()

	if c, ok := r.matcher.Exact(name, candidates); ok {
		r.claimed[c.ID] = true
		return r.cards[c.ID], matchExact, nil
	}
	if c, _, ok := r.matcher.Best(name, candidates); ok {
		r.claimed[c.ID] = true
		return r.cards[c.ID], matchFuzzy, nil
	}

	return nil, matchNone, nil
}

func (r *resolver) load(ctx context.Context) error {
	if r.loaded {
		return nil
	}
	cards, err := r.store.ListActiveCards(ctx, r.mapping.CardType)
	if err != nil {
		return fmt.Errorf("failed to load %s cards: %w", r.mapping.CardType, err)
	}

	r.cards = make(map[string]*entities.Card, len(cards))
	r.order = make([]string, 0, len(cards))
	for i := range cards {
		r.cards[cards[i].ID] = &cards[i]
		r.order = append(r.order, cards[i].ID)
	}
	r.loaded = true
	return nil
}

func (r *resolver) candidates() []similarity.Candidate {
	out := make([]similarity.Candidate, 0, len(r.order))
	for _, id := range r.order {
		if r.claimed[id] {
			continue
		}
		out = append(out, similarity.Candidate{ID: id, Name: r.cards[id].Name})
	}
	return out
}

// identityValue returns the transformed value of the first identity field
// that is non-empty on this record.
func (r *resolver) identityValue(record map[string]any) string {
	for _, fm := range r.mapping.FieldMappings {
		if !fm.IsIdentity {
			continue
		}
		raw, ok := record[fm.RemoteField]
		if !ok {
			continue
		}
		value := scalarString(transform.TransformValue(raw, fm.TransformType, fm.TransformConfig, transform.RemoteToLocal))
		if value != "" {
			return value
		}
	}
	return ""
}
