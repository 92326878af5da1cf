package markov

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestStream(t *testing.T) {
	ctx, g := setupTestGenerator(t, unitTestText)

	t.Run("One sentence", func(t *testing.T) {
		stream, err := g.Stream(ctx, State{}, 0)
		if err != nil {
			t.Fatalf("Stream failed: %v", err)
		}

		var tokens []string
		var last Token
		for token := range stream {
			tokens = append(tokens, token.Text)
			last = token
		}

		want := []string{"This", "is", "a", "unit", "test", "."}
		if !reflect.DeepEqual(tokens, want) {
			t.Errorf("streamed %q, want %q", tokens, want)
		}
		if !last.EOC {
			t.Error("expected the last token to be marked EOC")
		}
	})

	t.Run("Fixed length from state", func(t *testing.T) {
		stream, err := g.Stream(ctx, State{First: "test", Second: "."}, 7)
		if err != nil {
			t.Fatalf("Stream failed: %v", err)
		}

		var tokens []string
		for token := range stream {
			tokens = append(tokens, token.Text)
		}
		got := strings.Join(tokens, " ")
		if want := "Writing a unit test . Writing a"; got != want {
			t.Errorf("streamed %q, want %q", got, want)
		}
	})

	t.Run("Stream cancellation", func(t *testing.T) {
		ctxCancel, cancel := context.WithCancel(ctx)
		defer cancel()

		streamCancel, err := g.Stream(ctxCancel, State{}, 1000)
		if err != nil {
			t.Fatalf("Stream failed: %v", err)
		}

		// Read one token, then cancel
		<-streamCancel
		cancel()

		// Drain until closed; at most one in-flight token may still arrive.
		timeout := time.After(500 * time.Millisecond)
		for received := 0; ; received++ {
			select {
			case _, ok := <-streamCancel:
				if !ok {
					return
				}
				if received > 1 {
					t.Fatal("stream kept producing after cancellation")
				}
			case <-timeout:
				t.Fatal("timed out waiting for stream channel to close after cancellation")
			}
		}
	})
}

func TestStreamEmptyModel(t *testing.T) {
	_, s := setupTestStore(t)
	g := NewGenerator(s)

	if _, err := g.Stream(context.Background(), State{}, 5); !errors.Is(err, ErrEmptyModel) {
		t.Errorf("Stream() error = %v, want ErrEmptyModel", err)
	}
}

func BenchmarkStream(b *testing.B) {
	corpus := createBenchmarkCorpus()
	ctx := context.Background()
	s := setupTestStoreBench(b)

	if _, err := s.Train(ctx, strings.NewReader(corpus), Add); err != nil {
		b.Fatalf("Train() setup for benchmark failed: %v", err)
	}

	choosers := map[string]Chooser{
		"Weighted":        WeightedChoice(nil),
		"WithTemp":        SamplingChooser(nil, 0.7, 0),
		"WithTopK":        SamplingChooser(nil, 1.0, 10),
		"WithTempAndTopK": SamplingChooser(nil, 0.7, 10),
	}

	for name, chooser := range choosers {
		b.Run(name, func(b *testing.B) {
			g := NewGenerator(s, WithChooser(chooser))
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				stream, err := g.Stream(ctx, State{}, 50)
				if err != nil {
					b.Fatalf("Stream failed: %v", err)
				}
				for range stream {
				}
			}
		})
	}
}

func TestStreamCancelReleasesGoroutine(t *testing.T) {
	_, g := setupTestGenerator(t, unitTestText)
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := g.Stream(ctx, State{}, 50)
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	<-stream
	cancel()

	// The channel closes once the goroutine sees the cancellation.
	for range stream {
	}
}
