// Package state implements the on-disk metadata store: the record of
// stacks, segments, and branches that the workspace engine layers on
// top of a plain Git repository.
package state

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// StackID uniquely identifies a stack across the lifetime of a project.
type StackID string

// NewStackID generates a fresh, random StackID.
func NewStackID() StackID {
	return StackID(uuid.NewString())
}

// StackRecord is the persisted metadata for a single stack.
type StackRecord struct {
	// Order is the stack's position among stacks in the workspace.
	Order int `toml:"order"`

	// InWorkspace reports whether the stack is currently applied
	// to the workspace.
	InWorkspace bool `toml:"in_workspace"`

	// Description is an optional free-form description of the stack.
	Description string `toml:"description,omitempty"`

	// ReviewID is the forge-side review identifier for the stack, if any.
	ReviewID string `toml:"review_id,omitempty"`

	// SegmentOrder lists the ref names of the stack's segments,
	// tip-first.
	SegmentOrder []string `toml:"segment_order,omitempty"`

	// Heads maps a segment ref name to the commit hash it pointed at
	// as of the last update.
	Heads map[string]string `toml:"heads,omitempty"`
}

// BranchRecord is the persisted metadata for a single branch/segment.
type BranchRecord struct {
	// Description is an optional free-form description.
	Description string `toml:"description,omitempty"`

	// ReviewID is the forge-side review identifier, if any.
	ReviewID string `toml:"review_id,omitempty"`

	// PRNumber is the forge-side pull/merge request number, if any.
	PRNumber int `toml:"pr_number,omitempty"`

	// UpdatedAt records when this record was last changed.
	UpdatedAt time.Time `toml:"updated_at,omitzero"`

	// Default marks this branch as the repository's default branch
	// sentinel, rather than a tracked segment.
	Default bool `toml:"default,omitempty"`
}

// document is the on-disk shape of virtual_branches.toml.
type document struct {
	Stacks   map[StackID]*StackRecord `toml:"stacks"`
	Branches map[string]*BranchRecord `toml:"branches"`
	Target   *targetRecord            `toml:"target,omitempty"`
}

type targetRecord struct {
	Ref  string `toml:"ref"`
	Hash string `toml:"hash"`
}

// ErrNotExist indicates that a requested stack or branch record
// does not exist in the store.
var ErrNotExist = errors.New("not found")

// CorruptError indicates that the metadata file could not be
// deserialized, and was rotated aside to the given path.
type CorruptError struct {
	// Path is the location the unreadable file was moved to.
	Path string

	// Err is the underlying parse error.
	Err error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("metadata file is corrupt, moved aside to %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Store is the metadata store: stacks, branches, and the target ref.
//
// Store is not safe for concurrent use by multiple goroutines;
// callers serialize access through the project's write permission.
type Store struct {
	path string
	doc  document
}

func newDocument() document {
	return document{
		Stacks:   make(map[StackID]*StackRecord),
		Branches: make(map[string]*BranchRecord),
	}
}

// GetStack returns the stack record for the given id.
// Returns [ErrNotExist] if there is no such stack.
func (s *Store) GetStack(id StackID) (StackRecord, error) {
	rec, ok := s.doc.Stacks[id]
	if !ok {
		return StackRecord{}, fmt.Errorf("stack %s: %w", id, ErrNotExist)
	}
	return *rec, nil
}

// SetStack creates or replaces the stack record for the given id.
func (s *Store) SetStack(id StackID, rec StackRecord) {
	r := rec
	s.doc.Stacks[id] = &r
}

// DeleteStack removes a stack's record entirely.
func (s *Store) DeleteStack(id StackID) {
	delete(s.doc.Stacks, id)
}

// ListInWorkspace returns the ids of stacks with InWorkspace set,
// ordered by their Order field.
func (s *Store) ListInWorkspace() []StackID {
	var ids []StackID
	for id, rec := range s.doc.Stacks {
		if rec.InWorkspace {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.doc.Stacks[ids[i]].Order < s.doc.Stacks[ids[j]].Order
	})
	return ids
}

// UpdateOrdering rewrites the Order field of every listed stack
// to match its position in the slice.
func (s *Store) UpdateOrdering(ids []StackID) {
	for i, id := range ids {
		if rec, ok := s.doc.Stacks[id]; ok {
			rec.Order = i
		}
	}
}

// Branch returns the branch record for the given ref name,
// or an empty record if there is none. The empty record is not stored.
func (s *Store) Branch(ref string) BranchRecord {
	rec, ok := s.doc.Branches[ref]
	if !ok {
		return BranchRecord{}
	}
	return *rec
}

// SetBranch stores the branch record for the given ref name.
func (s *Store) SetBranch(ref string, rec BranchRecord) {
	r := rec
	s.doc.Branches[ref] = &r
}

// DeleteBranchEntry removes a branch's metadata record.
// It is a no-op if the branch has no record.
func (s *Store) DeleteBranchEntry(ref string) {
	delete(s.doc.Branches, ref)
}

// Target returns the recorded target ref and its base commit hash.
// ok is false if no target has been recorded.
func (s *Store) Target() (ref, hash string, ok bool) {
	if s.doc.Target == nil {
		return "", "", false
	}
	return s.doc.Target.Ref, s.doc.Target.Hash, true
}

// SetTarget records the integration target ref and its base commit.
func (s *Store) SetTarget(ref, hash string) {
	s.doc.Target = &targetRecord{Ref: ref, Hash: hash}
}

// ReconcileInWorkspace compares the store's InWorkspace flags against
// the set of stacks actually reachable from the managed workspace ref
// and corrects any mismatch it finds, returning the ids it changed.
//
// This is meant to be called once per project open; failures to
// reconcile are non-fatal and left to the caller to log.
func (s *Store) ReconcileInWorkspace(reachable map[StackID]bool) []StackID {
	var changed []StackID
	for id, rec := range s.doc.Stacks {
		want := reachable[id]
		if rec.InWorkspace != want {
			rec.InWorkspace = want
			changed = append(changed, id)
		}
	}
	return changed
}

// Encode serializes the store's contents for embedding in an oplog
// snapshot tree.
func (s *Store) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s.doc); err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode replaces the store's contents with the document read from r,
// the inverse of [Store.Encode]; used to restore an oplog snapshot's
// embedded metadata state.
func (s *Store) Decode(r io.Reader) error {
	var doc document
	if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	if doc.Stacks == nil {
		doc.Stacks = make(map[StackID]*StackRecord)
	}
	if doc.Branches == nil {
		doc.Branches = make(map[string]*BranchRecord)
	}
	s.doc = doc
	return nil
}
