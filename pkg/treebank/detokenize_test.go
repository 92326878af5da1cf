package treebank

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type DetokenizeTest struct {
	Name     string
	Input    []string
	Expected string
}

var DetokenizeTests = []DetokenizeTest{
	{"empty", nil, ""},
	{"final period", []string{"This", "is", "a", "test", "."}, "This is a test."},
	{"inner period kept", []string{"a", ".", "b", "."}, "a . b."},
	{"comma and bang", []string{"Hello", ",", "world", "!"}, "Hello, world!"},
	{"question", []string{"Is", "it", "?"}, "Is it?"},
	{"semicolon", []string{"wait", ";", "no"}, "wait; no"},
	{"colon", []string{"a", ":", "b"}, "a: b"},
	{"ampersand", []string{"rock", "&", "roll"}, "rock & roll"},
	{"n't", []string{"I", "ca", "n't", "go"}, "I can't go"},
	{"'s", []string{"She", "'s", "here", "."}, "She's here."},
	{"'re", []string{"They", "'re", "here"}, "They're here"},
	{"gonna", []string{"we", "are", "gon", "na", "win"}, "we are gonna win"},
	{"wanna", []string{"I", "wan", "na", "go"}, "I wanna go"},
	{"cannot", []string{"I", "can", "not", "stop"}, "I cannot stop"},
	{"brackets", []string{"(", "yes", ")"}, "(yes)"},
	{"quotes", []string{"``", "hi", "''"}, `"hi"`},
}

func TestDetokenize(t *testing.T) {
	for _, test := range DetokenizeTests {
		t.Run(test.Name, func(t *testing.T) {
			assert.Equal(t, test.Expected, Detokenize(test.Input))
		})
	}
}

func BenchmarkDetokenize(b *testing.B) {
	tokens := []string{"They", "'re", "sure", "it", "ca", "n't", "be", "(", "really", ")", ",", "are", "n't", "they", "?"}
	for i := 0; i < b.N; i++ {
		Detokenize(tokens)
	}
}
