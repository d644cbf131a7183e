// Package identity resolves caller credentials for the listing and
// dashboard endpoints. Account management itself lives outside this
// service; only the narrow token-to-owner lookup is modeled here.
package identity

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Owner is an account that devices and alerts are scoped to.
// Operators see the whole fleet.
type Owner struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	Username   string       `json:"username" gorm:"type:text;not null;uniqueIndex"`
	TokenHash  string       `json:"-" gorm:"column:token_hash;type:text;not null;uniqueIndex"`
	IsOperator bool         `json:"is_operator" gorm:"column:is_operator;not null;default:false"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Owner) TableName() string { return "owners" }

var ErrInvalidToken = errors.New("invalid_token")

// Resolver maps a bearer token to an owner.
type Resolver interface {
	ResolveToken(ctx context.Context, raw string) (*Owner, error)
}

// HashToken hashes a raw bearer token with the same strategy used when
// the token was issued.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

type dbResolver struct {
	db *gorm.DB
}

func NewResolver(db *gorm.DB) Resolver {
	return &dbResolver{db: db}
}

func (r *dbResolver) ResolveToken(ctx context.Context, raw string) (*Owner, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}

	hash := HashToken(raw)
	var owner Owner
	err := r.db.WithContext(ctx).Where("token_hash = ?", hash).First(&owner).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(owner.TokenHash), []byte(hash)) != 1 {
		return nil, ErrInvalidToken
	}
	return &owner, nil
}

var Module = fx.Module("identity",
	fx.Provide(NewResolver),
)
