// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package configservice implements the Configuration Propagation Pipeline
// of spec §4.7: one generic ConfigService[ID, D] per entity kind, wrapping
// a Repository and running set/set_list/delete through the
// write -> read-back -> after_update_config(new, old) -> event-emit
// sequence.
package configservice

import (
	"context"

	"grimm.is/flywall/internal/errors"
	"grimm.is/flywall/internal/repository"
)

// AfterUpdateFunc runs the diff-based side effects for one write and emits
// whatever fine-grained event that domain carries (§4.7 step 2-3). It is
// invoked with the full, freshly-read-back list both before and after the
// write so it can compute the minimal add/remove delta itself.
type AfterUpdateFunc[D any] func(ctx context.Context, newList, oldList []D)

// ConfigService wraps a Repository[ID, D] with the propagation pipeline.
type ConfigService[ID comparable, D repository.Entity[ID]] struct {
	repo        *repository.Repository[ID, D]
	afterUpdate AfterUpdateFunc[D]
}

// New constructs a ConfigService. afterUpdate may be nil for entity kinds
// with no steering-core side effects (pure CRUD, e.g. a metadata-only
// config with no downstream consumer).
func New[ID comparable, D repository.Entity[ID]](repo *repository.Repository[ID, D], afterUpdate AfterUpdateFunc[D]) *ConfigService[ID, D] {
	return &ConfigService[ID, D]{repo: repo, afterUpdate: afterUpdate}
}

// List returns every row (read-only passthrough, no propagation).
func (s *ConfigService[ID, D]) List(ctx context.Context) ([]D, error) {
	return s.repo.List(ctx)
}

// FindByID returns one row (read-only passthrough).
func (s *ConfigService[ID, D]) FindByID(ctx context.Context, id ID) (D, error) {
	return s.repo.FindByID(ctx, id)
}

// Set implements set(config): optimistic-concurrency upsert (I4/P3) of a
// single entity, followed by the propagation pipeline.
func (s *ConfigService[ID, D]) Set(ctx context.Context, d D) error {
	old, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.CheckedSet(ctx, d); err != nil {
		return err
	}
	return s.propagate(ctx, old)
}

// SetList implements set_list(configs): bulk upsert. A row the repository
// rejects is skipped rather than aborting the whole batch: every row that
// could be written is, propagation runs once afterwards, and the caller
// sees the first row error, if any. Rejected rows are not logged.
func (s *ConfigService[ID, D]) SetList(ctx context.Context, list []D) error {
	old, err := s.repo.List(ctx)
	if err != nil {
		return err
	}

	var firstErr error
	for _, d := range list {
		if err := s.repo.Set(ctx, d); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.propagate(ctx, old); err != nil {
		return err
	}
	return firstErr
}

// Delete implements delete(id): removes a row, then runs the propagation
// pipeline. Deleting a missing id is not itself an error.
func (s *ConfigService[ID, D]) Delete(ctx context.Context, id ID) error {
	old, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	return s.propagate(ctx, old)
}

func (s *ConfigService[ID, D]) propagate(ctx context.Context, old []D) error {
	newList, err := s.repo.List(ctx)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "propagation read-back")
	}
	if s.afterUpdate != nil {
		s.afterUpdate(ctx, newList, old)
	}
	return nil
}
