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

package repository

import (
	"context"

	"github.com/tomoncle/userstore/model"
	"github.com/tomoncle/userstore/types"
	"github.com/uptrace/bun"
)

// UserRepository adds user lookups to the generic repository.
type UserRepository struct {
	Repository[model.User]
}

func NewUserRepository(db bun.IDB) *UserRepository {
	return &UserRepository{Repository: NewRepository[model.User](db)}
}

// FindByEmail returns the only user with email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.FindOne(ctx, types.NewQueryFilter("email = ?", email))
}
