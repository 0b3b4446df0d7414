package lifecycle

import "github.com/google/uuid"

// TokenIssuer は確認トークンの発行インターフェース。
type TokenIssuer interface {
	// Issue は一意な確認トークンを発行する。
	Issue() string
}

// UUIDTokenIssuer はUUIDv4による確認トークン発行の実装。
type UUIDTokenIssuer struct{}

// Issue は一意な確認トークンを発行する。
func (UUIDTokenIssuer) Issue() string {
	return uuid.New().String()
}

// compile-time interface check
var _ TokenIssuer = UUIDTokenIssuer{}
