package types

import (
	"context"
	"time"
)

// BaseModel carries the audit columns shared by every persisted row.
// Any changes to this model must be reflected in the migrations.
type BaseModel struct {
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	UpdatedBy string    `db:"updated_by" json:"updated_by"`
}

func GetDefaultBaseModel(ctx context.Context) BaseModel {
	now := time.Now().UTC()
	user := GetUserID(ctx)
	if user == "" {
		user = DefaultUserID
	}
	return BaseModel{
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: user,
		UpdatedBy: user,
	}
}

// Touch stamps the update columns.
func (b *BaseModel) Touch(ctx context.Context, at time.Time) {
	b.UpdatedAt = at
	if user := GetUserID(ctx); user != "" {
		b.UpdatedBy = user
	}
}
