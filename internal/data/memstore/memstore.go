// Package memstore is an in-process implementation of the job and user repositories backed
// by go-memdb. It honors the same conditional-write contracts as the Postgres store and is
// used for STORE=memory deployments and service tests.
package memstore

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/target/sarbatch/internal/domain/model"
)

const (
	usersTable = "users"
	jobsTable  = "jobs"

	idIndex     = "id"
	userIndex   = "user"
	statusIndex = "status"
)

// Store owns the in-memory database. Use Users and Jobs to obtain the repositories.
type Store struct {
	db  *memdb.MemDB
	now func() time.Time
}

// Options configures a Store.
type Options struct {
	// Now overrides the clock used for created_at/updated_at stamps.
	Now func() time.Time
}

// New creates an empty Store.
func New(opts Options) (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("create memdb: %w", err)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now}, nil
}

// MustNew is like New but panics on error.
func MustNew(opts Options) *Store {
	s, err := New(opts)
	if err != nil {
		panic(err)
	}
	return s
}

// Users returns the user ledger repository.
func (s *Store) Users() *UserStore { return &UserStore{store: s} }

// Jobs returns the job repository.
func (s *Store) Jobs() *JobStore { return &JobStore{store: s} }

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			usersTable: {
				Name: usersTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "UserID"},
					},
				},
			},
			jobsTable: {
				Name: jobsTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "JobID"},
					},
					userIndex: {
						Name:    userIndex,
						Indexer: &memdb.StringFieldIndex{Field: "UserID"},
					},
					statusIndex: {
						Name:    statusIndex,
						Indexer: &memdb.StringFieldIndex{Field: "StatusCode"},
					},
				},
			},
		},
	}
}

// Objects stored in memdb must never be mutated, so every read and write goes through a copy.

func cloneUser(u *model.User) *model.User {
	c := *u
	if u.PriorityOverride != nil {
		v := *u.PriorityOverride
		c.PriorityOverride = &v
	}
	if u.UseCase != nil {
		v := *u.UseCase
		c.UseCase = &v
	}
	return &c
}

func cloneJob(j *model.Job) *model.Job {
	c := *j
	if j.JobParameters != nil {
		c.JobParameters = make(map[string]any, len(j.JobParameters))
		for k, v := range j.JobParameters {
			c.JobParameters[k] = v
		}
	}
	if j.Name != nil {
		v := *j.Name
		c.Name = &v
	}
	if j.SubscriptionID != nil {
		v := *j.SubscriptionID
		c.SubscriptionID = &v
	}
	return &c
}
