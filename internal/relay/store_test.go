package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMemoryStore_PutGet(t *testing.T) {
	s := NewMemoryStore(100, time.Hour)
	ctx := context.Background()

	before := time.Now()
	tok, err := s.Put(ctx, Entry{OriginURL: "https://o.example/seg0.ts", Referer: "https://r.example/"})
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	e, err := s.Get(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "https://o.example/seg0.ts", e.OriginURL)
	assert.Equal(t, "https://r.example/", e.Referer)
	assert.WithinDuration(t, before.Add(time.Hour), e.ExpiresAt, 5*time.Second)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_unknown_token(t *testing.T) {
	s := NewMemoryStore(10, time.Hour)
	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrStoreUnavailable))
}

func TestMemoryStore_fresh_token_per_put(t *testing.T) {
	s := NewMemoryStore(10, time.Hour)
	e := Entry{OriginURL: "https://o.example/seg0.ts"}
	a, err := s.Put(context.Background(), e)
	require.NoError(t, err)
	b, err := s.Put(context.Background(), e)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestMemoryStore_expiry(t *testing.T) {
	s := NewMemoryStore(10, time.Second)
	ctx := context.Background()

	tok, err := s.Put(ctx, Entry{OriginURL: "https://o.example/seg0.ts"})
	require.NoError(t, err)

	_, err = s.Get(ctx, tok)
	require.NoError(t, err, "entry should be retrievable immediately")

	time.Sleep(1100 * time.Millisecond)

	_, err = s.Get(ctx, tok)
	assert.True(t, errors.Is(err, ErrNotFound), "expected ErrNotFound after TTL, got %v", err)
}

func TestMemoryStore_evicts_least_recently_used(t *testing.T) {
	s := NewMemoryStore(3, time.Hour)
	ctx := context.Background()

	put := func(name string) Token {
		tok, err := s.Put(ctx, Entry{OriginURL: "https://o.example/" + name})
		require.NoError(t, err)
		return tok
	}
	a, b, c := put("a"), put("b"), put("c")

	// Touch a so b becomes the least recently used.
	_, err := s.Get(ctx, a)
	require.NoError(t, err)

	d := put("d")

	_, err = s.Get(ctx, b)
	assert.True(t, errors.Is(err, ErrNotFound), "b should have been evicted")
	for _, tok := range []Token{a, c, d} {
		_, err := s.Get(ctx, tok)
		assert.NoError(t, err)
	}
	assert.Equal(t, 3, s.Len())
}

func TestMemoryStore_concurrent_puts_unique(t *testing.T) {
	const workers, perWorker = 50, 40
	s := NewMemoryStore(workers*perWorker, time.Hour)
	ctx := context.Background()

	var (
		mu     sync.Mutex
		tokens = make(map[Token]string, workers*perWorker)
		wg     sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				origin := fmt.Sprintf("https://o.example/%d/%d.ts", w, i)
				tok, err := s.Put(ctx, Entry{OriginURL: origin})
				if err != nil {
					t.Errorf("Put: %v", err)
					return
				}
				mu.Lock()
				tokens[tok] = origin
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	require.Len(t, tokens, workers*perWorker)
	assert.Equal(t, workers*perWorker, s.Len())
	for tok, origin := range tokens {
		e, err := s.Get(ctx, tok)
		require.NoError(t, err)
		assert.Equal(t, origin, e.OriginURL)
	}
}

func TestMemoryStore_concurrent_get_and_evict(t *testing.T) {
	s := NewMemoryStore(8, time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	tokens := make(chan Token, 256)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				tok, err := s.Put(ctx, Entry{OriginURL: "https://o.example/x.ts"})
				if err != nil {
					t.Errorf("Put: %v", err)
					return
				}
				select {
				case tokens <- tok:
				default:
				}
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				select {
				case tok := <-tokens:
					if _, err := s.Get(ctx, tok); err != nil && !errors.Is(err, ErrNotFound) {
						t.Errorf("Get: unexpected error %v", err)
					}
				default:
				}
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, s.Len(), 8)
}

func TestMemoryStore_put_drops_expired_oldest(t *testing.T) {
	s := NewMemoryStore(10, 50*time.Millisecond)
	ctx := context.Background()

	old, err := s.Put(ctx, Entry{OriginURL: "https://o.example/old.ts"})
	require.NoError(t, err)
	time.Sleep(80 * time.Millisecond)

	_, err = s.Put(ctx, Entry{OriginURL: "https://o.example/new.ts"})
	require.NoError(t, err)

	assert.Equal(t, 1, s.Len())
	_, err = s.Get(ctx, old)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestMemoryStore_no_background_goroutine(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewMemoryStore(10, time.Minute)
	tok, err := s.Put(context.Background(), Entry{OriginURL: "https://o.example/seg0.ts"})
	require.NoError(t, err)
	_, err = s.Get(context.Background(), tok)
	require.NoError(t, err)
}
