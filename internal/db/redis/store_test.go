package redis

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/kailas-cloud/coderank-eval/internal/db"
	"github.com/kailas-cloud/coderank-eval/internal/domain"
	"github.com/kailas-cloud/coderank-eval/internal/repository/embcache"
)

const keyPrefix = "coderank:emb_cache:"

type constEmbedder struct {
	vec   []float32
	calls int
}

func (e *constEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	e.calls++
	return domain.EmbeddingResult{Embedding: e.vec, TotalTokens: 1}, nil
}

func vectorBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func isCacheGet(cmd []string) bool {
	return len(cmd) == 2 && cmd[0] == "GET" && strings.HasPrefix(cmd[1], keyPrefix)
}

func TestStore_CacheMissWritesVectorWithExpiry(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	vec := []float32{0.25, -1}

	var key string
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			if isCacheGet(cmd) {
				key = cmd[1]
				return true
			}
			return false
		})).
		Return(mock.Result(mock.RedisNil()))
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return len(cmd) == 5 && cmd[0] == "SET" && cmd[1] == key &&
				cmd[2] == string(vectorBytes(vec)) && cmd[3] == "EX" && cmd[4] == "86400"
		})).
		Return(mock.Result(mock.RedisString("OK")))

	inner := &constEmbedder{vec: vec}
	ce := embcache.New(inner, NewStoreForTest(c), "cornstack/CodeRankEmbed", zap.NewNop(),
		embcache.WithTTL(24*time.Hour))

	res, err := ce.Embed(context.Background(), "def add(a, b): return a + b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 || res.Embedding[0] != 0.25 {
		t.Errorf("expected upstream vector, got %v after %d calls", res.Embedding, inner.calls)
	}
}

func TestStore_CacheHitSkipsUpstream(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(isCacheGet)).
		Return(mock.Result(mock.RedisBlobString(string(vectorBytes([]float32{3, 4})))))

	inner := &constEmbedder{vec: []float32{0}}
	ce := embcache.New(inner, NewStoreForTest(c), "m", zap.NewNop())

	res, err := ce.Embed(context.Background(), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 0 || res.Embedding[1] != 4 || res.TotalTokens != 0 {
		t.Errorf("expected cached [3 4] with no tokens, got %+v after %d calls", res, inner.calls)
	}
}

func TestStore_ErrorsCarryOperation(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		cmd  string
		call func(*Store) error
		op   string
	}{
		{"ping", "PING", func(s *Store) error { return s.Ping(ctx) }, db.OpPing},
		{"get", "GET", func(s *Store) error { _, err := s.Get(ctx, "k"); return err }, db.OpGet},
		{"set with ttl", "SET", func(s *Store) error { return s.SetWithTTL(ctx, "k", []byte("v"), time.Hour) }, db.OpSet},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			c := mock.NewClient(ctrl)
			c.EXPECT().
				Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == tc.cmd })).
				Return(mock.ErrorResult(context.DeadlineExceeded))

			err := tc.call(NewStoreForTest(c))
			var dbErr *db.Error
			if !errors.As(err, &dbErr) || dbErr.Op != tc.op {
				t.Fatalf("expected db.Error with op %s, got %v", tc.op, err)
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("expected cause to be kept, got %v", err)
			}
		})
	}
}

func TestStore_GetMissingKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "absent")).
		Return(mock.Result(mock.RedisNil()))

	_, err := NewStoreForTest(c).Get(context.Background(), "absent")
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestStore_SetWithoutTTLHasNoExpiry(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	c.EXPECT().
		Do(gomock.Any(), mock.Match("SET", "k", "v")).
		Return(mock.Result(mock.RedisString("OK")))

	if err := NewStoreForTest(c).SetWithTTL(context.Background(), "k", []byte("v"), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWaitForReady_RetriesUntilPong(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	gomock.InOrder(
		c.EXPECT().
			Do(gomock.Any(), mock.Match("PING")).
			Return(mock.ErrorResult(errors.New("connection refused"))).
			Times(2),
		c.EXPECT().
			Do(gomock.Any(), mock.Match("PING")).
			Return(mock.Result(mock.RedisString("PONG"))),
	)

	if err := NewStoreForTest(c).WaitForReady(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWaitForReady_Timeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(errors.New("connection refused"))).
		AnyTimes()

	err := NewStoreForTest(c).WaitForReady(context.Background(), 250*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}
