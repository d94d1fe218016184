/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package userstore stores users through a session-style and an
// entity-manager-style API over one shared database. Service and UserService
// run each call in its own unit of work.
package userstore

import (
	"context"

	"github.com/tomoncle/userstore/database"
	"github.com/tomoncle/userstore/model"
	"github.com/tomoncle/userstore/repository"
	"github.com/tomoncle/userstore/session"
	"github.com/tomoncle/userstore/types"
)

type Service[T any] interface {
	// Get returns a single entity by its identifier.
	Get(ctx context.Context, id any) (*T, error)

	// All returns all entities.
	All(ctx context.Context) ([]*T, error)

	// List returns entities that match the provided filter.
	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)

	// Query returns entities matching a where clause with "?" placeholders.
	Query(ctx context.Context, query string, args ...interface{}) ([]*T, error)

	// Page returns a paginated list of entities.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	// Count returns the number of entities matching filter.
	Count(ctx context.Context, filter *types.QueryFilter) (int, error)

	// Update modifies an existing entity. The generic implementation writes
	// model as given, without entity validation.
	Update(ctx context.Context, model *T) error

	// Delete removes an entity by its identifier.
	Delete(ctx context.Context, id any) error

	// Save inserts one or more new entities and sets their ids on the given
	// structs. The generic implementation neither validates them nor checks
	// that they are transient; UserService does both.
	Save(ctx context.Context, model ...*T) error

	// SaveOrUpdate upserts entities based on fields and duplicate keys.
	SaveOrUpdate(ctx context.Context, fields []string, duplicateKeys []string, model ...*T) error

	// InTransaction runs fn with a repository bound to one transaction,
	// committing when fn returns nil.
	InTransaction(ctx context.Context, fn func(ctx context.Context, repo repository.Repository[T]) error) error
}

type baseServiceImpl[T any] struct {
	factory *session.Factory
}

// NewService returns a Service whose calls each run in their own session
// and transaction opened from factory.
func NewService[T any](factory *session.Factory) Service[T] {
	return &baseServiceImpl[T]{factory: factory}
}

func (s *baseServiceImpl[T]) InTransaction(ctx context.Context, fn func(ctx context.Context, repo repository.Repository[T]) error) error {
	return s.factory.InTransaction(ctx, func(ctx context.Context, sess *session.Session) error {
		db, err := sess.DB()
		if err != nil {
			return err
		}
		return fn(ctx, repository.NewRepository[T](db))
	})
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, model ...*T) error {
	return s.InTransaction(ctx, func(ctx context.Context, repo repository.Repository[T]) error {
		return repo.Create(ctx, model...)
	})
}

func (s *baseServiceImpl[T]) SaveOrUpdate(ctx context.Context, fields []string, duplicateKeys []string, model ...*T) error {
	return s.InTransaction(ctx, func(ctx context.Context, repo repository.Repository[T]) error {
		return repo.Upsert(ctx, fields, duplicateKeys, model...)
	})
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id any) (entity *T, err error) {
	err = s.InTransaction(ctx, func(ctx context.Context, repo repository.Repository[T]) error {
		entity, err = repo.GetOne(ctx, id)
		return err
	})
	return entity, err
}

func (s *baseServiceImpl[T]) All(ctx context.Context) (entities []*T, err error) {
	err = s.InTransaction(ctx, func(ctx context.Context, repo repository.Repository[T]) error {
		entities, err = repo.GetAll(ctx)
		return err
	})
	return entities, err
}

func (s *baseServiceImpl[T]) List(ctx context.Context, filter *types.QueryFilter) (entities []*T, err error) {
	err = s.InTransaction(ctx, func(ctx context.Context, repo repository.Repository[T]) error {
		entities, err = repo.List(ctx, filter)
		return err
	})
	return entities, err
}

func (s *baseServiceImpl[T]) Query(ctx context.Context, query string, args ...interface{}) ([]*T, error) {
	return s.List(ctx, types.NewQueryFilter(query, args...))
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, page *types.PageRequest) (result *types.Pagination[T], err error) {
	err = s.InTransaction(ctx, func(ctx context.Context, repo repository.Repository[T]) error {
		result, err = repo.Page(ctx, page)
		return err
	})
	return result, err
}

func (s *baseServiceImpl[T]) Count(ctx context.Context, filter *types.QueryFilter) (total int, err error) {
	err = s.InTransaction(ctx, func(ctx context.Context, repo repository.Repository[T]) error {
		total, err = repo.Count(ctx, filter)
		return err
	})
	return total, err
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, model *T) error {
	return s.InTransaction(ctx, func(ctx context.Context, repo repository.Repository[T]) error {
		return repo.Update(ctx, model)
	})
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, id any) error {
	return s.InTransaction(ctx, func(ctx context.Context, repo repository.Repository[T]) error {
		return repo.Delete(ctx, id)
	})
}

// UserService adds user workflows to the generic service. Its writes go
// through the session API, so users are validated before they are stored.
type UserService struct {
	Service[model.User]
	factory *session.Factory
}

func NewUserService(factory *session.Factory) *UserService {
	return &UserService{Service: NewService[model.User](factory), factory: factory}
}

// Register stores a new user and returns it with its id.
func (s *UserService) Register(ctx context.Context, email, password string) (user model.User, err error) {
	err = s.factory.InTransaction(ctx, func(ctx context.Context, sess *session.Session) error {
		user, err = sess.Save(ctx, model.User{Email: email, Password: password})
		return err
	})
	return user, err
}

// Save stores new users in one unit of work. Each must be transient and
// valid; the assigned ids are set on users only after the commit.
func (s *UserService) Save(ctx context.Context, users ...*model.User) error {
	saved := make([]model.User, len(users))
	err := s.factory.InTransaction(ctx, func(ctx context.Context, sess *session.Session) error {
		for i, user := range users {
			var err error
			if saved[i], err = sess.Save(ctx, *user); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for i, user := range users {
		user.ID = saved[i].ID
	}
	return nil
}

// Update writes a persistent user after validating it. user is not modified.
func (s *UserService) Update(ctx context.Context, user *model.User) error {
	return s.factory.InTransaction(ctx, func(ctx context.Context, sess *session.Session) error {
		return sess.Update(ctx, *user)
	})
}

// FindByEmail returns the only user registered with email.
func (s *UserService) FindByEmail(ctx context.Context, email string) (user model.User, err error) {
	err = s.factory.InTransaction(ctx, func(ctx context.Context, sess *session.Session) error {
		user, err = sess.FindByEmail(ctx, email)
		return err
	})
	return user, err
}

// ChangeEmail moves the user registered with oldEmail to newEmail.
func (s *UserService) ChangeEmail(ctx context.Context, oldEmail, newEmail string) (user model.User, err error) {
	if oldEmail == newEmail {
		return model.User{}, database.Errorf(database.ErrInvalidEntity, "userstore.ChangeEmail", "new email equals the old one")
	}
	err = s.factory.InTransaction(ctx, func(ctx context.Context, sess *session.Session) error {
		user, err = sess.FindByEmail(ctx, oldEmail)
		if err != nil {
			return err
		}
		user.Email = newEmail
		return sess.Update(ctx, user)
	})
	if err != nil {
		return model.User{}, err
	}
	return user, nil
}
