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

// Package model holds the persisted entities.
package model

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/uptrace/bun"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// User is the only persisted entity. A zero ID means the user has not been
// saved yet; the store assigns the ID on the first successful insert. Email
// is required and otherwise free-form; Password is stored as given.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u" gorm:"-" json:"-"`

	ID       int64  `bun:"id,pk,autoincrement" gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Email    string `bun:"email,notnull" gorm:"column:email;not null" json:"email" validate:"required"`
	Password string `bun:"password,notnull" gorm:"column:password;not null" json:"-"`
}

// TableName is used by GORM; bun reads the table from BaseModel.
func (User) TableName() string {
	return "users"
}

// IsTransient reports whether the user has never been persisted.
func (u User) IsTransient() bool {
	return u.ID == 0
}

// Validate checks the struct tags of u.
func (u User) Validate() error {
	if err := validate.Struct(u); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func (u User) String() string {
	return fmt.Sprintf("User{id=%d, email=%s}", u.ID, u.Email)
}

// Models lists every entity that needs a table.
func Models() []interface{} {
	return []interface{}{(*User)(nil)}
}

func formatValidationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", fe.Field())
	default:
		return fmt.Errorf("%s is invalid (%s)", fe.Field(), fe.Tag())
	}
}
