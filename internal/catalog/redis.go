package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/mohammed-shakir/raster-intake/internal/catalog/keys"
	"github.com/mohammed-shakir/raster-intake/internal/catalog/redisstore"
	"github.com/mohammed-shakir/raster-intake/internal/errkind"
	"github.com/mohammed-shakir/raster-intake/internal/stac"
)

// upsertScript applies one item version atomically.
//
// KEYS[1] item hash, KEYS[2] collection member set
// ARGV[1] body, ARGV[2] zero-padded logical ts, ARGV[3] fingerprint, ARGV[4] item id,
// ARGV[5] cell key prefix, ARGV[6..] cells
//
// Returns 0 unchanged, -1 stale, 1 inserted, 2 updated.
var upsertScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'ts', 'fp', 'cells')
if cur[1] then
  if cur[2] == ARGV[3] then
    return 0
  end
  if ARGV[2] < cur[1] or (ARGV[2] == cur[1] and ARGV[3] < cur[2]) then
    return -1
  end
  if cur[3] and cur[3] ~= '' then
    for c in string.gmatch(cur[3], '[^,]+') do
      redis.call('SREM', ARGV[5] .. c, ARGV[4])
    end
  end
end
local cells = {}
for i = 6, #ARGV do
  redis.call('SADD', ARGV[5] .. ARGV[i], ARGV[4])
  cells[#cells + 1] = ARGV[i]
end
redis.call('HSET', KEYS[1], 'body', ARGV[1], 'ts', ARGV[2], 'fp', ARGV[3], 'cells', table.concat(cells, ','))
redis.call('SADD', KEYS[2], ARGV[4])
if cur[1] then
  return 2
end
return 1
`)

// CellHierarchy expands a cell to itself and its coarser ancestors.
type CellHierarchy interface {
	Ancestors(cell string, minRes int) ([]string, error)
}

type RedisStore struct {
	cli   *redisstore.Client
	log   *slog.Logger
	cells CellHierarchy
}

func NewRedisStore(cli *redisstore.Client, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}
	return &RedisStore{cli: cli, log: log}
}

// WithHierarchy makes ItemsForCell also match items indexed at coarser resolutions.
func (s *RedisStore) WithHierarchy(h CellHierarchy) *RedisStore {
	s.cells = h
	return s
}

func (s *RedisStore) PutItem(ctx context.Context, rec Record) (PutResult, error) {
	if rec.Collection == "" || rec.ID == "" {
		return 0, errkind.Validation.New("record needs collection and id")
	}
	fp := rec.Fingerprint
	if fp == "" {
		fp = keys.Fingerprint(rec.Body)
	}

	args := make([]any, 0, 5+len(rec.Cells))
	args = append(args, rec.Body, keys.LogicalTS(rec.LogicalTS), fp, rec.ID, keys.CellPrefix(rec.Collection))
	for _, c := range normalizeCells(rec.Cells) {
		args = append(args, c)
	}

	v, err := s.cli.RunScript(ctx, upsertScript,
		[]string{keys.Item(rec.Collection, rec.ID), keys.Members(rec.Collection)}, args...)
	if err != nil {
		return 0, errkind.StoreUnavailable.Wrap(err)
	}
	n, ok := v.(int64)
	if !ok {
		return 0, errkind.StoreUnavailable.New("upsert %s/%s: unexpected reply %T", rec.Collection, rec.ID, v)
	}
	switch n {
	case 0:
		return Unchanged, nil
	case -1:
		return Stale, nil
	case 1:
		return Inserted, nil
	}
	return Updated, nil
}

func (s *RedisStore) GetItem(ctx context.Context, collection, id string) (Record, error) {
	h, err := s.cli.HGetAll(ctx, keys.Item(collection, id))
	if err != nil {
		return Record{}, errkind.StoreUnavailable.Wrap(err)
	}
	if len(h) == 0 {
		return Record{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	ts, _ := strconv.ParseInt(h["ts"], 10, 64)
	rec := Record{
		Collection:  collection,
		ID:          id,
		Body:        []byte(h["body"]),
		LogicalTS:   ts,
		Fingerprint: h["fp"],
	}
	if c := h["cells"]; c != "" {
		rec.Cells = strings.Split(c, ",")
	}
	return rec, nil
}

func (s *RedisStore) ListItems(ctx context.Context, collection string) ([]Record, error) {
	ids, err := s.cli.SMembers(ctx, keys.Members(collection))
	if err != nil {
		return nil, errkind.StoreUnavailable.Wrap(err)
	}
	sort.Strings(ids)

	ks := make([]string, len(ids))
	for i, id := range ids {
		ks[i] = keys.Item(collection, id)
	}
	bodies, err := s.cli.HGetMany(ctx, ks, "body")
	if err != nil {
		return nil, errkind.StoreUnavailable.Wrap(err)
	}

	out := make([]Record, 0, len(ids))
	for i, id := range ids {
		b, ok := bodies[ks[i]]
		if !ok {
			continue
		}
		out = append(out, Record{Collection: collection, ID: id, Body: []byte(b)})
	}
	return out, nil
}

func (s *RedisStore) EnsureCollection(ctx context.Context, c stac.Collection) error {
	if c.ID == "" {
		return errkind.Validation.New("collection needs an id")
	}
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", c.ID, err)
	}
	created, err := s.cli.SetNX(ctx, keys.Collection(c.ID), body)
	if err != nil {
		return errkind.StoreUnavailable.Wrap(err)
	}
	if created {
		s.log.InfoContext(ctx, "collection created", "collection", c.ID)
	}
	return nil
}

// Collection returns the stored collection document.
func (s *RedisStore) Collection(ctx context.Context, id string) (stac.Collection, error) {
	raw, err := s.cli.Get(ctx, keys.Collection(id))
	if errors.Is(err, redis.Nil) {
		return stac.Collection{}, fmt.Errorf("collection %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return stac.Collection{}, errkind.StoreUnavailable.Wrap(err)
	}
	var c stac.Collection
	if err := json.Unmarshal(raw, &c); err != nil {
		return stac.Collection{}, fmt.Errorf("decode collection %s: %w", id, err)
	}
	return c, nil
}

func (s *RedisStore) ItemsForCell(ctx context.Context, collection, cell string) ([]string, error) {
	cells := []string{cell}
	if s.cells != nil {
		anc, err := s.cells.Ancestors(cell, 0)
		if err != nil {
			return nil, errkind.Validation.Wrap(err)
		}
		cells = anc
	}

	ks := make([]string, len(cells))
	for i, c := range cells {
		ks[i] = keys.Cell(collection, c)
	}
	ids, err := s.cli.SUnion(ctx, ks...)
	if err != nil {
		return nil, errkind.StoreUnavailable.Wrap(err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Ping reports whether the backing Redis answers.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.cli.Ping(ctx)
}

func normalizeCells(cells []string) []string {
	out := make([]string, 0, len(cells))
	seen := make(map[string]struct{}, len(cells))
	for _, c := range cells {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || strings.Contains(c, ",") {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
