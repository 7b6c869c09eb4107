// Package store is the durable, append-oriented claim store. Claims are
// keyed by id with a secondary index by actor; trust edges keep a full
// append log next to a current-weight index.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ozodon/fedmarket/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS claims (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	actor        TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	received_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_claims_actor ON claims(actor);

CREATE TABLE IF NOT EXISTS offers (
	id          TEXT PRIMARY KEY,
	actor       TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	image       TEXT NOT NULL DEFAULT '',
	price       REAL NOT NULL,
	currency    TEXT NOT NULL,
	tags        TEXT NOT NULL DEFAULT '[]',
	origin_hub  TEXT NOT NULL DEFAULT '',
	raw         TEXT NOT NULL DEFAULT '',
	received_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_offers_actor ON offers(actor);

CREATE TABLE IF NOT EXISTS trust_log (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	claim_id    TEXT NOT NULL,
	source      TEXT NOT NULL,
	target      TEXT NOT NULL,
	weight      REAL NOT NULL,
	asserted_at TEXT NOT NULL,
	proof       TEXT NOT NULL DEFAULT '',
	origin_hub  TEXT NOT NULL DEFAULT '',
	raw         TEXT NOT NULL DEFAULT '',
	received_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trust_log_source ON trust_log(source);

CREATE TABLE IF NOT EXISTS trust_active (
	source      TEXT NOT NULL,
	target      TEXT NOT NULL,
	weight      REAL NOT NULL,
	asserted_at TEXT NOT NULL,
	claim_id    TEXT NOT NULL,
	PRIMARY KEY (source, target)
);

CREATE TABLE IF NOT EXISTS flags (
	id          TEXT PRIMARY KEY,
	reporter    TEXT NOT NULL,
	target      TEXT NOT NULL,
	reason      TEXT NOT NULL,
	asserted_at TEXT NOT NULL,
	decision    TEXT NOT NULL DEFAULT 'pending',
	origin_hub  TEXT NOT NULL DEFAULT '',
	raw         TEXT NOT NULL DEFAULT '',
	received_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_flags_reporter ON flags(reporter);

CREATE TABLE IF NOT EXISTS tombstones (
	claim_id    TEXT PRIMARY KEY,
	actor       TEXT NOT NULL,
	received_at TEXT NOT NULL
);
`

// tsLayout is fixed-width so stored timestamps compare correctly as
// strings inside SQL (the trust_active upsert relies on this).
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// PutResult reports what a put actually did
type PutResult struct {
	// Inserted is true for a first-seen claim id; the pipeline uses it
	// to decide whether the claim is eligible for replication.
	Inserted bool
	// EdgeActivated is true when a trust edge put became the current
	// weight for its (source, target) pair.
	EdgeActivated bool
	// RetractedEdge holds the pair removed from the current-weight index
	// when a tombstone put retracted an active trust edge.
	RetractedEdge *EdgePair
}

// EdgePair identifies one directed edge
type EdgePair struct {
	Source string
	Target string
}

// Store wraps the SQLite claim collections
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (or creates) the claim store at path. Use ":memory:" in tests.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Put upserts a claim by id. First-seen ids insert; an identical
// re-delivery is a no-op; differing content for a known id is a conflict
// and the earliest write is kept.
func (s *Store) Put(ctx context.Context, claim model.Claim) (PutResult, error) {
	var res PutResult

	id := claim.ClaimID()
	hash := contentHash(claim)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// The tombstone check shares the transaction so a retraction
	// committed concurrently cannot slip the retracted claim back in.
	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM tombstones WHERE claim_id = ?`, id).Scan(&one)
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, sql.ErrNoRows):
	default:
		return res, fmt.Errorf("lookup tombstone: %w", err)
	}

	var existingHash string
	err = tx.QueryRowContext(ctx, `SELECT content_hash FROM claims WHERE id = ?`, id).Scan(&existingHash)
	switch {
	case err == nil:
		if existingHash == hash {
			return res, nil // idempotent re-delivery
		}
		return res, fmt.Errorf("claim %s: %w", id, model.ErrConflict)
	case errors.Is(err, sql.ErrNoRows):
		// first sighting, fall through
	default:
		return res, fmt.Errorf("lookup claim: %w", err)
	}

	receivedAt := s.now().UTC()
	ts := receivedAt.Format(tsLayout)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO claims (id, kind, actor, content_hash, received_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(claim.Kind()), claim.ActorID(), hash, ts,
	)
	if err != nil {
		return res, fmt.Errorf("insert claim: %w", err)
	}

	switch c := claim.(type) {
	case model.Offer:
		err = s.insertOffer(ctx, tx, c, ts)
	case model.TrustEdge:
		res.EdgeActivated, err = s.insertEdge(ctx, tx, c, ts)
	case model.Flag:
		err = s.insertFlag(ctx, tx, c, ts)
	case model.Tombstone:
		res.RetractedEdge, err = s.insertTombstone(ctx, tx, c, ts)
	default:
		err = fmt.Errorf("unsupported claim kind %q", claim.Kind())
	}
	if err != nil {
		return res, err
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit: %w", err)
	}
	res.Inserted = true
	return res, nil
}

func (s *Store) insertOffer(ctx context.Context, tx *sql.Tx, o model.Offer, ts string) error {
	tags, err := json.Marshal(o.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO offers (id, actor, title, description, image, price, currency, tags, origin_hub, raw, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Actor, o.Title, o.Description, o.Image, o.Price, o.Currency, string(tags), o.OriginHub, string(o.Raw), ts,
	)
	if err != nil {
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

// insertEdge appends to the trust log unconditionally and promotes the
// edge to the current-weight index iff it is the newest assertion for
// its pair (last-write-wins by asserted_at).
func (s *Store) insertEdge(ctx context.Context, tx *sql.Tx, e model.TrustEdge, ts string) (bool, error) {
	assertedAt := e.AssertedAt.UTC().Format(tsLayout)

	_, err := tx.ExecContext(ctx,
		`INSERT INTO trust_log (claim_id, source, target, weight, asserted_at, proof, origin_hub, raw, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Source, e.Target, e.Weight, assertedAt, e.Proof, e.OriginHub, string(e.Raw), ts,
	)
	if err != nil {
		return false, fmt.Errorf("append trust log: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO trust_active (source, target, weight, asserted_at, claim_id)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(source, target) DO UPDATE SET
		   weight = excluded.weight,
		   asserted_at = excluded.asserted_at,
		   claim_id = excluded.claim_id
		 WHERE excluded.asserted_at > trust_active.asserted_at`,
		e.Source, e.Target, e.Weight, assertedAt, e.ID,
	)
	if err != nil {
		return false, fmt.Errorf("update trust index: %w", err)
	}

	var activeClaim string
	err = tx.QueryRowContext(ctx,
		`SELECT claim_id FROM trust_active WHERE source = ? AND target = ?`,
		e.Source, e.Target,
	).Scan(&activeClaim)
	if err != nil {
		return false, fmt.Errorf("read trust index: %w", err)
	}
	return activeClaim == e.ID, nil
}

func (s *Store) insertFlag(ctx context.Context, tx *sql.Tx, f model.Flag, ts string) error {
	decision := f.Decision
	if decision == "" {
		decision = model.DecisionPending
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO flags (id, reporter, target, reason, asserted_at, decision, origin_hub, raw, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Reporter, f.Target, f.Reason, f.AssertedAt.UTC().Format(tsLayout), string(decision), f.OriginHub, string(f.Raw), ts,
	)
	if err != nil {
		return fmt.Errorf("insert flag: %w", err)
	}
	return nil
}

// insertTombstone records the retraction and drops the target from the
// current-weight index when it was an active trust edge. Log rows are
// kept for audit.
func (s *Store) insertTombstone(ctx context.Context, tx *sql.Tx, t model.Tombstone, ts string) (*EdgePair, error) {
	_, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO tombstones (claim_id, actor, received_at) VALUES (?, ?, ?)`,
		t.TargetID, t.Actor, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert tombstone: %w", err)
	}

	var pair EdgePair
	err = tx.QueryRowContext(ctx,
		`SELECT source, target FROM trust_active WHERE claim_id = ?`, t.TargetID,
	).Scan(&pair.Source, &pair.Target)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM trust_active WHERE source = ? AND target = ?`, pair.Source, pair.Target,
		); err != nil {
			return nil, fmt.Errorf("retract trust edge: %w", err)
		}
		return &pair, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	default:
		return nil, fmt.Errorf("lookup retracted edge: %w", err)
	}
}

// GetOffer returns the offer with the given id, or ErrNotFound
func (s *Store) GetOffer(ctx context.Context, id string) (model.Offer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, actor, title, description, image, price, currency, tags, origin_hub, raw, received_at
		 FROM offers
		 WHERE id = ? AND id NOT IN (SELECT claim_id FROM tombstones)`, id)
	o, err := scanOffer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Offer{}, fmt.Errorf("offer %s: %w", id, model.ErrNotFound)
	}
	return o, err
}

// GetFlag returns the flag with the given id, or ErrNotFound
func (s *Store) GetFlag(ctx context.Context, id string) (model.Flag, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, reporter, target, reason, asserted_at, decision, origin_hub, raw, received_at
		 FROM flags
		 WHERE id = ? AND id NOT IN (SELECT claim_id FROM tombstones)`, id)
	f, err := scanFlag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Flag{}, fmt.Errorf("flag %s: %w", id, model.ErrNotFound)
	}
	return f, err
}

// SetFlagDecision records the terminal moderation decision for a flag.
// The decision is set once; later calls against a decided flag no-op.
func (s *Store) SetFlagDecision(ctx context.Context, id string, decision model.FlagDecision) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE flags SET decision = ? WHERE id = ? AND decision = 'pending'`,
		string(decision), id,
	)
	if err != nil {
		return fmt.Errorf("set flag decision: %w", err)
	}
	return nil
}

// OffersByActor returns the actor's offers, freshest first
func (s *Store) OffersByActor(ctx context.Context, actor string, limit int) ([]model.Offer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, actor, title, description, image, price, currency, tags, origin_hub, raw, received_at
		 FROM offers
		 WHERE actor = ? AND id NOT IN (SELECT claim_id FROM tombstones)
		 ORDER BY received_at DESC LIMIT ?`, actor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOffers(rows)
}

// RecentOffers returns the newest offers up to limit
func (s *Store) RecentOffers(ctx context.Context, limit int) ([]model.Offer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, actor, title, description, image, price, currency, tags, origin_hub, raw, received_at
		 FROM offers
		 WHERE id NOT IN (SELECT claim_id FROM tombstones)
		 ORDER BY received_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOffers(rows)
}

// MatchOffers applies the search filters and returns every candidate
// ordered by ascending price; composite ranking and the result limit
// happen in the rank package, after scoring. limit <= 0 means no cap.
func (s *Store) MatchOffers(ctx context.Context, term, tag string, minPrice, maxPrice *float64, limit int) ([]model.Offer, error) {
	q := strings.Builder{}
	q.WriteString(`SELECT id, actor, title, description, image, price, currency, tags, origin_hub, raw, received_at
		 FROM offers WHERE id NOT IN (SELECT claim_id FROM tombstones)`)
	var args []any
	if term != "" {
		q.WriteString(` AND (title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\')`)
		like := "%" + escapeLike(term) + "%"
		args = append(args, like, like)
	}
	if tag != "" {
		q.WriteString(` AND tags LIKE ? ESCAPE '\'`)
		args = append(args, `%"`+escapeLike(strings.TrimPrefix(tag, "#"))+`"%`)
	}
	if minPrice != nil {
		q.WriteString(` AND price >= ?`)
		args = append(args, *minPrice)
	}
	if maxPrice != nil {
		q.WriteString(` AND price <= ?`)
		args = append(args, *maxPrice)
	}
	q.WriteString(` ORDER BY price ASC`)
	if limit > 0 {
		q.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOffers(rows)
}

// escapeLike neutralizes LIKE metacharacters so user input matches
// literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ActiveEdges returns every current trust edge; used to rebuild the
// in-memory graph at startup.
func (s *Store) ActiveEdges(ctx context.Context) ([]model.TrustEdge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, target, weight, asserted_at, claim_id FROM trust_active`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []model.TrustEdge
	for rows.Next() {
		var e model.TrustEdge
		var assertedAt string
		if err := rows.Scan(&e.Source, &e.Target, &e.Weight, &assertedAt, &e.ID); err != nil {
			return nil, err
		}
		e.AssertedAt, _ = time.Parse(tsLayout, assertedAt)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// EdgesBySource returns the actor's outgoing current edges
func (s *Store) EdgesBySource(ctx context.Context, source string) ([]model.TrustEdge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, target, weight, asserted_at, claim_id FROM trust_active WHERE source = ?`, source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []model.TrustEdge
	for rows.Next() {
		var e model.TrustEdge
		var assertedAt string
		if err := rows.Scan(&e.Source, &e.Target, &e.Weight, &assertedAt, &e.ID); err != nil {
			return nil, err
		}
		e.AssertedAt, _ = time.Parse(tsLayout, assertedAt)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// IncomingTrust aggregates current incoming edges for an actor: average
// weight and vote count. Zero votes yields a neutral 0.5.
func (s *Store) IncomingTrust(ctx context.Context, actor string) (float64, int, error) {
	var avg sql.NullFloat64
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT AVG(weight), COUNT(*) FROM trust_active WHERE target = ?`, actor,
	).Scan(&avg, &count)
	if err != nil {
		return 0, 0, err
	}
	if count == 0 {
		return 0.5, 0, nil
	}
	return avg.Float64, count, nil
}

// FlagsByReporter returns the reporter's flags, freshest first
func (s *Store) FlagsByReporter(ctx context.Context, reporter string, limit int) ([]model.Flag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, reporter, target, reason, asserted_at, decision, origin_hub, raw, received_at
		 FROM flags
		 WHERE reporter = ? AND id NOT IN (SELECT claim_id FROM tombstones)
		 ORDER BY received_at DESC LIMIT ?`, reporter, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFlags(rows)
}

// RecentFlags returns the newest flags up to limit
func (s *Store) RecentFlags(ctx context.Context, limit int) ([]model.Flag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, reporter, target, reason, asserted_at, decision, origin_hub, raw, received_at
		 FROM flags
		 WHERE id NOT IN (SELECT claim_id FROM tombstones)
		 ORDER BY received_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFlags(rows)
}

// Counts returns collection sizes for hub info
func (s *Store) Counts(ctx context.Context) (offers, edges, flags int, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM offers`).Scan(&offers); err != nil {
		return
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trust_active`).Scan(&edges); err != nil {
		return
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flags`).Scan(&flags)
	return
}

// TagCount pairs a tag with its usage count
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// TopTags returns the most used offer tags in descending order
func (s *Store) TopTags(ctx context.Context, limit int) ([]TagCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tags FROM offers WHERE id NOT IN (SELECT claim_id FROM tombstones)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var tags []string
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			continue
		}
		for _, t := range tags {
			counts[t]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOffer(row rowScanner) (model.Offer, error) {
	var o model.Offer
	var tags, raw, receivedAt string
	if err := row.Scan(&o.ID, &o.Actor, &o.Title, &o.Description, &o.Image, &o.Price, &o.Currency, &tags, &o.OriginHub, &raw, &receivedAt); err != nil {
		return o, err
	}
	_ = json.Unmarshal([]byte(tags), &o.Tags)
	o.Raw = json.RawMessage(raw)
	o.ReceivedAt, _ = time.Parse(tsLayout, receivedAt)
	return o, nil
}

func collectOffers(rows *sql.Rows) ([]model.Offer, error) {
	var offers []model.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

func scanFlag(row rowScanner) (model.Flag, error) {
	var f model.Flag
	var assertedAt, decision, raw, receivedAt string
	if err := row.Scan(&f.ID, &f.Reporter, &f.Target, &f.Reason, &assertedAt, &decision, &f.OriginHub, &raw, &receivedAt); err != nil {
		return f, err
	}
	f.Decision = model.FlagDecision(decision)
	f.Raw = json.RawMessage(raw)
	f.AssertedAt, _ = time.Parse(tsLayout, assertedAt)
	f.ReceivedAt, _ = time.Parse(tsLayout, receivedAt)
	return f, nil
}

func collectFlags(rows *sql.Rows) ([]model.Flag, error) {
	var flags []model.Flag
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, err
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

// contentHash fingerprints the canonical fields of a claim so identical
// re-deliveries are recognized regardless of raw JSON byte differences.
func contentHash(claim model.Claim) string {
	var parts []string
	switch c := claim.(type) {
	case model.Offer:
		parts = []string{"offer", c.ID, c.Actor, c.Title, c.Description, c.Image,
			fmt.Sprintf("%g", c.Price), c.Currency, strings.Join(c.Tags, ",")}
	case model.TrustEdge:
		parts = []string{"trust", c.ID, c.Source, c.Target,
			fmt.Sprintf("%g", c.Weight), c.AssertedAt.UTC().Format(tsLayout)}
	case model.Flag:
		parts = []string{"flag", c.ID, c.Reporter, c.Target, c.Reason,
			c.AssertedAt.UTC().Format(tsLayout)}
	case model.Tombstone:
		parts = []string{"tombstone", c.ID, c.Actor, c.TargetID}
	default:
		parts = []string{string(claim.Kind()), claim.ClaimID()}
	}
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(hash[:])
}
