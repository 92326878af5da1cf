package restore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/natefinch/atomic"
)

// Default file names of the restorer tables inside a data directory.
const (
	SequencesFile   = "sentence.sequences.txt"
	PunctuationFile = "punctuation.probabilities.json"
	ProperNounsFile = "dictionary.propernouns.txt"
)

// Files names the table files. An empty path means the table is empty.
type Files struct {
	// Sequences holds one comma separated POS sequence per line.
	Sequences string `mapstructure:"sequences"`
	// Punctuation holds a JSON object {tag: {mark: probability}}.
	Punctuation string `mapstructure:"punctuation"`
	// ProperNouns holds one proper noun per line, in its proper casing.
	ProperNouns string `mapstructure:"proper_nouns"`
}

// FilesIn returns the default file names inside dir.
func FilesIn(dir string) Files {
	return Files{
		Sequences:   filepath.Join(dir, SequencesFile),
		Punctuation: filepath.Join(dir, PunctuationFile),
		ProperNouns: filepath.Join(dir, ProperNounsFile),
	}
}

// Tables holds the data a Restorer works from.
type Tables struct {
	// Sequences are the POS sequences of known-valid sentences.
	Sequences [][]string
	// Punctuation maps the POS tag of a sentence's last word to the
	// probability of each mark that may end it.
	Punctuation map[string]map[string]float64
	ProperNouns []string
}

// punctuationMarks are the tokens Learn treats as sentence boundaries.
var punctuationMarks = map[string]bool{
	".": true, "!": true, "?": true, ",": true, ";": true, ":": true, "...": true,
}

// LoadTables reads the tables named by files. A table whose file is missing
// or invalid is left empty and a warning is logged.
func LoadTables(files Files, logger *slog.Logger) Tables {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	var tables Tables

	if lines, err := readLines(files.Sequences); err != nil {
		logger.Warn("Could not load sentence sequences, using an empty table",
			slog.String("path", files.Sequences), slog.Any("error", err))
	} else {
		for _, line := range lines {
			tables.Sequences = append(tables.Sequences, strings.Split(line, ","))
		}
	}

	if files.Punctuation != "" {
		if data, err := os.ReadFile(files.Punctuation); err != nil {
			logger.Warn("Could not load punctuation probabilities, using an empty table",
				slog.String("path", files.Punctuation), slog.Any("error", err))
		} else if err = json.Unmarshal(data, &tables.Punctuation); err != nil {
			tables.Punctuation = nil
			logger.Warn("Invalid punctuation probabilities, using an empty table",
				slog.String("path", files.Punctuation), slog.Any("error", err))
		}
	}

	if lines, err := readLines(files.ProperNouns); err != nil {
		logger.Warn("Could not load proper nouns, using an empty table",
			slog.String("path", files.ProperNouns), slog.Any("error", err))
	} else {
		tables.ProperNouns = lines
	}

	logger.Info("Restorer tables loaded",
		slog.Int("sequences", len(tables.Sequences)),
		slog.Int("tags", len(tables.Punctuation)),
		slog.Int("proper_nouns", len(tables.ProperNouns)),
	)
	return tables
}

// readLines returns the non-blank, trimmed lines of path. An empty path
// yields no lines.
func readLines(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// Save writes the tables to files. Each file is replaced atomically; tables
// whose path is empty are skipped.
func (t Tables) Save(files Files) error {
	if files.Sequences != "" {
		var buf bytes.Buffer
		for _, seq := range t.Sequences {
			buf.WriteString(sequenceKey(seq))
			buf.WriteByte('\n')
		}
		if err := atomic.WriteFile(files.Sequences, &buf); err != nil {
			return fmt.Errorf("could not write sentence sequences: %w", err)
		}
	}

	if files.Punctuation != "" {
		punctuation := t.Punctuation
		if punctuation == nil {
			punctuation = map[string]map[string]float64{}
		}
		data, err := json.MarshalIndent(punctuation, "", "  ")
		if err != nil {
			return fmt.Errorf("could not encode punctuation probabilities: %w", err)
		}
		if err = atomic.WriteFile(files.Punctuation, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("could not write punctuation probabilities: %w", err)
		}
	}

	if files.ProperNouns != "" {
		var buf bytes.Buffer
		for _, noun := range t.ProperNouns {
			buf.WriteString(noun)
			buf.WriteByte('\n')
		}
		if err := atomic.WriteFile(files.ProperNouns, &buf); err != nil {
			return fmt.Errorf("could not write proper nouns: %w", err)
		}
	}
	return nil
}

// Learn builds tables from punctuated text, read line by line. Every run of
// words closed by a punctuation mark adds its POS sequence, and the mark is
// counted against the tag of the run's last word. Capitalized words tagged
// as proper nouns anywhere but at the start of a sentence are collected as
// proper nouns.
func Learn(r io.Reader, tagger Tagger) (Tables, error) {
	if tagger == nil {
		return Tables{}, errors.New("restore: Learn needs a tagger")
	}

	sequences := make(map[string][]string)
	counts := make(map[string]map[string]int)
	nouns := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		tokens := tagger.Tokenize(scanner.Text())
		if len(tokens) == 0 {
			continue
		}
		tags := tagger.Tag(tokens)

		start := 0
		for i, tok := range tokens {
			if !punctuationMarks[tok] {
				if i > start && isProperNounTag(tags[i]) && startsUpper(tok) {
					nouns[tok] = struct{}{}
				}
				continue
			}
			if i > start {
				seq := tags[start:i]
				sequences[sequenceKey(seq)] = slices.Clone(seq)
				last := tags[i-1]
				if counts[last] == nil {
					counts[last] = make(map[string]int)
				}
				counts[last][tok]++
			}
			start = i + 1
		}
		if start < len(tokens) {
			seq := tags[start:]
			sequences[sequenceKey(seq)] = slices.Clone(seq)
		}
	}
	if err := scanner.Err(); err != nil {
		return Tables{}, fmt.Errorf("could not read corpus: %w", err)
	}

	tables := Tables{Punctuation: make(map[string]map[string]float64, len(counts))}
	for _, key := range slices.Sorted(maps.Keys(sequences)) {
		tables.Sequences = append(tables.Sequences, sequences[key])
	}
	for tag, marks := range counts {
		total := 0
		for _, n := range marks {
			total += n
		}
		dist := make(map[string]float64, len(marks))
		for mark, n := range marks {
			dist[mark] = float64(n) / float64(total)
		}
		tables.Punctuation[tag] = dist
	}
	tables.ProperNouns = slices.Sorted(maps.Keys(nouns))
	return tables, nil
}

func isProperNounTag(tag string) bool {
	return tag == "NNP" || tag == "NNPS"
}

func startsUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}
