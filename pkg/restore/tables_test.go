package restore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const learnCorpus = `the dog runs. a cat sleeps!
the dog runs, Sonic runs.
we saw Sonic
`

func TestLearn(t *testing.T) {
	tables, err := Learn(strings.NewReader(learnCorpus), testLexicon)
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"DT", "NN", "VBZ"},
		{"NNP", "VBZ"},
		{"PRP", "VBD", "NNP"},
	}, tables.Sequences)
	assert.Equal(t, map[string]map[string]float64{
		"VBZ": {".": 0.5, "!": 0.25, ",": 0.25},
	}, tables.Punctuation)
	assert.Equal(t, []string{"Sonic"}, tables.ProperNouns)
}

func TestLearnNeedsTagger(t *testing.T) {
	_, err := Learn(strings.NewReader(learnCorpus), nil)
	assert.Error(t, err)
}

func TestSaveAndLoadTables(t *testing.T) {
	files := FilesIn(t.TempDir())
	tables, err := Learn(strings.NewReader(learnCorpus), testLexicon)
	require.NoError(t, err)

	require.NoError(t, tables.Save(files))
	assert.Equal(t, tables, LoadTables(files, nil))
}

func TestLoadTablesFallsBack(t *testing.T) {
	t.Run("missing files", func(t *testing.T) {
		tables := LoadTables(FilesIn(t.TempDir()), nil)
		assert.Empty(t, tables.Sequences)
		assert.Empty(t, tables.Punctuation)
		assert.Empty(t, tables.ProperNouns)
	})

	t.Run("empty paths", func(t *testing.T) {
		assert.Equal(t, Tables{}, LoadTables(Files{}, nil))
	})

	t.Run("invalid punctuation json", func(t *testing.T) {
		files := FilesIn(t.TempDir())
		require.NoError(t, os.WriteFile(files.Punctuation, []byte(`{"VBZ": [`), 0o644))
		require.NoError(t, os.WriteFile(files.Sequences, []byte("DT,NN,VBZ\n\n  NNP,VBZ  \n"), 0o644))

		tables := LoadTables(files, nil)
		assert.Nil(t, tables.Punctuation)
		assert.Equal(t, [][]string{{"DT", "NN", "VBZ"}, {"NNP", "VBZ"}}, tables.Sequences)
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	files := FilesIn(dir)
	require.NoError(t, os.WriteFile(files.Sequences, []byte("DT,NN,VBZ\n"), 0o644))
	require.NoError(t, os.WriteFile(files.Punctuation, []byte(`{"VBZ": {"!": 1.0}}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProperNounsFile), []byte("Sonic\n"), 0o644))

	r := Load(files, WithTagger(testLexicon), WithSentenceLength(3, 0))
	assert.Equal(t, "The dog runs! Sonic.", r.Restore("the dog runs sonic"))
}
