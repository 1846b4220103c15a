// Package bunstore keeps the legacy normalized store in a SQL database. Rows
// of legacy_entities are managed through a go-repository-bun repository; each
// holds one entity's JSON under a deterministic id derived from its ref.
package bunstore

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/goliatone/go-entity-cache/entity"
	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// refNamespace scopes row ids derived from entity refs.
var refNamespace = uuid.MustParse("8f5d3c1e-6a0b-4f7e-9c2d-4b1a7e0f3d52")

// Row is the stored form of one entity.
type Row struct {
	bun.BaseModel `bun:"table:legacy_entities"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	Ref       string    `bun:"ref,notnull,unique"`
	Kind      string    `bun:"kind,notnull"`
	EntityID  int64     `bun:"entity_id,notnull"`
	Payload   []byte    `bun:"payload,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// RowID returns the id of the row holding ref.
func RowID(ref entity.Ref) uuid.UUID {
	return uuid.NewSHA1(refNamespace, []byte(ref.String()))
}

// Handlers returns the repository handlers for Row.
func Handlers() repository.ModelHandlers[*Row] {
	return repository.ModelHandlers[*Row]{
		NewRecord: func() *Row { return &Row{} },
		GetID: func(r *Row) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *Row, id uuid.UUID) {
			r.ID = id
		},
		GetIdentifier: func() string {
			return "ref"
		},
	}
}

// Store is a legacy store backed by a bun repository.
type Store struct {
	db   *bun.DB
	repo repository.Repository[*Row]
	now  func() time.Time

	// mu orders upserts of the same ref; the repository reads before it
	// writes.
	mu sync.Mutex
}

// New wraps an open bun database.
func New(db *bun.DB) *Store {
	return &Store{
		db:   db,
		repo: repository.NewRepository[*Row](db, Handlers()),
		now:  time.Now,
	}
}

// Open connects to driver/dsn and picks the matching bun dialect.
func Open(driver, dsn string) (*Store, error) {
	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryExternal, "open legacy database").
			WithMetadata(map[string]any{"driver": driver})
	}

	var db *bun.DB
	switch driver {
	case DriverSQLite:
		// Every connection to ":memory:" is its own database.
		if strings.Contains(dsn, ":memory:") {
			sqldb.SetMaxOpenConns(1)
		}
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case DriverPostgres:
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		sqldb.Close()
		return nil, errors.New("unsupported legacy driver", errors.CategoryBadInput).
			WithMetadata(map[string]any{"driver": driver})
	}
	return New(db), nil
}

// DB exposes the underlying database.
func (s *Store) DB() *bun.DB { return s.db }

// Repository exposes the row repository.
func (s *Store) Repository() repository.Repository[*Row] { return s.repo }

// CreateSchema creates the legacy_entities table if it does not exist.
func (s *Store) CreateSchema(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*Row)(nil)).IfNotExists().Exec(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "create legacy schema")
	}
	return nil
}

// Write upserts entities. When a ref appears more than once the last entity
// wins.
func (s *Store) Write(ctx context.Context, entities ...entity.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	now := s.now().UTC()
	rows := make([]*Row, 0, len(entities))
	index := make(map[entity.Ref]int, len(entities))
	for _, e := range entities {
		ref := e.EntityRef()
		payload, err := json.Marshal(e)
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "encode legacy entity").
				WithMetadata(map[string]any{"ref": ref.String()})
		}
		row := &Row{
			ID:        RowID(ref),
			Ref:       ref.String(),
			Kind:      string(ref.Kind),
			EntityID:  int64(ref.ID),
			Payload:   payload,
			UpdatedAt: now,
		}
		if i, ok := index[ref]; ok {
			rows[i] = row
			continue
		}
		index[ref] = len(rows)
		rows = append(rows, row)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		if _, err := s.repo.Upsert(ctx, row); err != nil {
			return errors.Wrap(err, errors.CategoryExternal, "write legacy entity").
				WithMetadata(map[string]any{"ref": row.Ref, "count": len(rows)})
		}
	}
	return nil
}

func byRef(ref entity.Ref) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("ref = ?", ref.String())
	}
}

// Contains reports whether ref has a row.
func (s *Store) Contains(ctx context.Context, ref entity.Ref) (bool, error) {
	n, err := s.repo.Count(ctx, byRef(ref))
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryExternal, "check legacy entity").
			WithMetadata(map[string]any{"ref": ref.String()})
	}
	return n > 0, nil
}

// Get loads and decodes the stored entity for ref.
func (s *Store) Get(ctx context.Context, ref entity.Ref) (entity.Entity, bool, error) {
	rows, _, err := s.repo.List(ctx, byRef(ref))
	if err != nil {
		return nil, false, errors.Wrap(err, errors.CategoryExternal, "read legacy entity").
			WithMetadata(map[string]any{"ref": ref.String()})
	}
	if len(rows) == 0 {
		return nil, false, nil
	}

	e, err := decode(ref.Kind, rows[0].Payload)
	if err != nil {
		return nil, false, errors.Wrap(err, errors.CategoryInternal, "decode legacy entity").
			WithMetadata(map[string]any{"ref": ref.String()})
	}
	return e, true, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func decode(kind entity.Kind, payload []byte) (entity.Entity, error) {
	switch kind {
	case entity.KindTrack:
		var t entity.Track
		if err := json.Unmarshal(payload, &t); err != nil {
			return nil, err
		}
		return &t, nil
	case entity.KindUser:
		var u entity.User
		if err := json.Unmarshal(payload, &u); err != nil {
			return nil, err
		}
		return &u, nil
	case entity.KindCollection:
		var c entity.Collection
		if err := json.Unmarshal(payload, &c); err != nil {
			return nil, err
		}
		return &c, nil
	default:
		return nil, errors.New("unknown entity kind", errors.CategoryBadInput).
			WithMetadata(map[string]any{"kind": string(kind)})
	}
}
