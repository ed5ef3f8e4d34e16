package session

import (
	"context"

	"alif/internal/logging"
	"alif/internal/types"
)

// assemble turns the ordered picks into response cards: canonical-resolved
// token annotations, the primary lemma the card teaches and grammar feature
// names.
func (b *Builder) assemble(ctx context.Context, ordered []*pick, cls *classified, due []*types.MemoryState) []types.SessionCard {
	dueSet := make(map[int64]struct{}, len(due))
	for _, st := range due {
		dueSet[st.LemmaID] = struct{}{}
	}

	featureNames := make(map[int64]string)
	if features, err := b.store.AllGrammarFeatures(ctx); err == nil {
		for _, f := range features {
			featureNames[f.ID] = f.Name
		}
	} else {
		logging.Session("load grammar features: %v", err)
	}

	cards := make([]types.SessionCard, 0, len(ordered))
	for _, p := range ordered {
		sent := p.sent
		card := types.SessionCard{
			SentenceID:      sent.ID,
			Arabic:          sent.Arabic,
			Translation:     sent.Translation,
			Transliteration: sent.Transliteration,
			AudioURL:        sent.AudioURL,
			OnDemand:        p.onDemand,
		}

		for _, tok := range sent.Tokens {
			info := types.TokenInfo{Surface: tok.Surface}
			if tok.LemmaID != 0 {
				canon := b.graph.Resolve(tok.LemmaID)
				info.LemmaID = canon
				info.IsFunctionWord = b.graph.IsFunctionWord(canon)
				if l := b.graph.Lemma(canon); l != nil {
					info.Gloss = l.Gloss
				}
				if st := cls.states[canon]; st != nil {
					info.Stability = st.Stability()
				}
				if _, ok := dueSet[canon]; ok {
					info.Due = true
				}
			}
			card.Tokens = append(card.Tokens, info)
		}

		card.PrimaryLemmaID = b.primaryLemma(p, dueSet)
		if l := b.graph.Lemma(card.PrimaryLemmaID); l != nil {
			card.PrimaryGloss = l.Gloss
		}

		for _, fid := range sent.GrammarFeatures {
			if name, ok := featureNames[fid]; ok {
				card.GrammarFeatures = append(card.GrammarFeatures, name)
			}
		}
		cards = append(cards, card)
	}
	return cards
}

// primaryLemma picks the lemma a card headlines: the sentence's generation
// target if it is due, otherwise the first covered due lemma, otherwise the
// first content word.
func (b *Builder) primaryLemma(p *pick, dueSet map[int64]struct{}) int64 {
	if p.sent.TargetLemmaID != 0 {
		canon := b.graph.Resolve(p.sent.TargetLemmaID)
		if _, ok := dueSet[canon]; ok {
			return canon
		}
	}
	if len(p.covered) > 0 {
		return p.covered[0]
	}
	content := b.contentLemmas(p.sent)
	if len(content) > 0 {
		return content[0]
	}
	return 0
}
