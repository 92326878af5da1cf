package textmodel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/CTAG07/triadgen/pkg/markov"
	"github.com/CTAG07/triadgen/pkg/storefile"
)

// MarkovOption configures a MarkovModel.
type MarkovOption func(*MarkovModel)

// WithConfig sets the block shape. Default: DefaultConfig().
func WithConfig(cfg Config) MarkovOption {
	return func(m *MarkovModel) { m.cfg = cfg }
}

// WithStoreOptions passes options to the triad store once it is opened.
func WithStoreOptions(opts ...markov.StoreOption) MarkovOption {
	return func(m *MarkovModel) { m.storeOpts = append(m.storeOpts, opts...) }
}

// WithGeneratorOptions passes options to the generator once it is built.
func WithGeneratorOptions(opts ...markov.GeneratorOption) MarkovOption {
	return func(m *MarkovModel) { m.genOpts = append(m.genOpts, opts...) }
}

// WithLogger sets the logger of the model, its store and its generator.
func WithLogger(logger *slog.Logger) MarkovOption {
	return func(m *MarkovModel) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// MarkovModel generates text from a compressed triad store. The archive is
// decompressed on the first call that needs it, and the model's state is
// carried from one call to the next. A MarkovModel owns its archive and must
// be closed.
type MarkovModel struct {
	archive   *storefile.Archive
	cfg       Config
	storeOpts []markov.StoreOption
	genOpts   []markov.GeneratorOption
	logger    *slog.Logger

	mu    sync.Mutex
	store *markov.Store
	gen   *markov.Generator
	state markov.State
}

// NewMarkov creates a model over archive without reading it.
func NewMarkov(archive *storefile.Archive, opts ...MarkovOption) *MarkovModel {
	m := &MarkovModel{
		archive: archive,
		cfg:     DefaultConfig(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OpenMarkov opens the archive at path and creates a model over it.
func OpenMarkov(path string, archiveOpts []storefile.Option, opts ...MarkovOption) (*MarkovModel, error) {
	archive, err := storefile.Open(path, archiveOpts...)
	if err != nil {
		return nil, err
	}
	return NewMarkov(archive, opts...), nil
}

// Config returns the model's block shape.
func (m *MarkovModel) Config() Config {
	return m.cfg
}

// load opens the store and checks that it can start a sentence. It must be
// called with mu held.
func (m *MarkovModel) load(ctx context.Context) error {
	if m.gen != nil {
		return nil
	}

	db, err := m.archive.DB(ctx)
	if err != nil {
		return err
	}
	store, err := markov.NewStore(ctx, db, m.storeOpts...)
	if err != nil {
		return fmt.Errorf("could not open triad store: %w", err)
	}
	store.SetLogger(m.logger)
	if err = store.CheckReady(ctx); err != nil {
		store.Close()
		return fmt.Errorf("%s: %w", m.archive.Path(), err)
	}

	gen := markov.NewGenerator(store, m.genOpts...)
	gen.SetLogger(m.logger)
	m.store = store
	m.gen = gen
	m.logger.InfoContext(ctx, "Markov model loaded", slog.String("archive", m.archive.Path()))
	return nil
}

// Generator returns the model's generator, loading the store if needed.
func (m *MarkovModel) Generator(ctx context.Context) (*markov.Generator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.load(ctx); err != nil {
		return nil, err
	}
	return m.gen, nil
}

// GetNextWord continues the model's walk by one token.
func (m *MarkovModel) GetNextWord(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.load(ctx); err != nil {
		return "", err
	}
	return m.gen.NextToken(ctx, &m.state)
}

// GetTextBlock generates a block continuing prompt. The walk resumes from
// the end of the block on the next GetNextWord.
func (m *MarkovModel) GetTextBlock(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.load(ctx); err != nil {
		return "", err
	}
	return m.gen.Block(ctx, &m.state, prompt, m.cfg.blockOptions()...)
}

// Close releases the store and removes the decompressed working copy.
func (m *MarkovModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store != nil {
		m.store.Close()
		m.store = nil
		m.gen = nil
	}
	return m.archive.Close()
}
