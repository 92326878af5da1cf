package restore

import (
	"sort"
	"strings"
	"sync"

	"github.com/jdkato/prose/v2"
)

// fallbackTag is given to tokens the tagger could not line up.
const fallbackTag = "NN"

var (
	taggingModelOnce sync.Once
	taggingModel     *prose.Model
)

// sharedModel returns the perceptron tagging model, decoding it on first
// use. Tagging only reads the model, so every document shares it.
func sharedModel() *prose.Model {
	taggingModelOnce.Do(func() {
		doc, err := prose.NewDocument("", prose.WithSegmentation(false), prose.WithExtraction(false))
		if err == nil {
			taggingModel = doc.Model
		}
	})
	return taggingModel
}

// ProseTagger tokenizes and tags English text with prose's perceptron
// tagger, which uses Penn Treebank tags.
type ProseTagger struct {
	model *prose.Model
}

// NewProseTagger returns a tagger backed by the shared prose model.
func NewProseTagger() *ProseTagger {
	return &ProseTagger{model: sharedModel()}
}

func (p *ProseTagger) docOptions(tagging bool) []prose.DocOpt {
	opts := []prose.DocOpt{
		prose.WithSegmentation(false),
		prose.WithTagging(tagging),
		prose.WithExtraction(false),
	}
	model := p.model
	if model == nil {
		model = sharedModel()
	}
	if model != nil {
		opts = append(opts, prose.UsingModel(model))
	}
	return opts
}

// Tokenize splits text into prose's word and punctuation tokens.
func (p *ProseTagger) Tokenize(text string) []string {
	doc, err := prose.NewDocument(text, p.docOptions(false)...)
	if err != nil {
		return strings.Fields(text)
	}
	tokens := make([]string, 0, len(doc.Tokens()))
	for _, tok := range doc.Tokens() {
		tokens = append(tokens, tok.Text)
	}
	return tokens
}

// Tag tags tokens in context. prose tokenizes the joined text itself, so
// each of its tokens is matched back to the input token it falls in; an
// input token takes the tag of the first prose token inside it.
func (p *ProseTagger) Tag(tokens []string) []string {
	tags := make([]string, len(tokens))
	if len(tokens) == 0 {
		return tags
	}

	starts := make([]int, len(tokens))
	var sb strings.Builder
	for i, tok := range tokens {
		if i > 0 {
			sb.WriteByte(' ')
		}
		starts[i] = sb.Len()
		sb.WriteString(tok)
	}
	text := sb.String()

	doc, err := prose.NewDocument(text, p.docOptions(true)...)
	if err == nil {
		offset := 0
		for _, tok := range doc.Tokens() {
			idx := strings.Index(text[offset:], tok.Text)
			if idx < 0 || tok.Text == "" {
				continue
			}
			pos := offset + idx
			offset = pos + len(tok.Text)
			i := sort.SearchInts(starts, pos+1) - 1
			if i >= 0 && tags[i] == "" {
				tags[i] = tok.Tag
			}
		}
	}

	for i := range tags {
		if tags[i] == "" {
			tags[i] = fallbackTag
		}
	}
	return tags
}
