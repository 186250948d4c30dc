// Package exchange implements the Upbit-shaped concrete adapters for
// ports.MarketDataSource and ports.OrderGateway (spec §1), grounded on
// the teacher's BinanceProvider's plain net/http.Client idiom
// (internal/marketdata/external/binance.go) rather than its WebSocket
// streaming path, since spec.md's Non-goals rule out real-time streaming
// market data (polling only).
package exchange

import (
	"context"

	"go.uber.org/zap"

	"github.com/tradsys-core/engine/internal/crypto"
	"github.com/tradsys-core/engine/internal/errors"
	"github.com/tradsys-core/engine/internal/storage"
)

// Credentials is one user's decrypted exchange API key/secret, held only
// for the lifetime of a single outbound call.
type Credentials struct {
	APIKey string
	Secret string
}

// CredentialSource resolves a user's decrypted exchange credentials.
type CredentialSource interface {
	Credentials(ctx context.Context, userID string) (Credentials, error)
}

// UserCredentialSource decrypts credentials on demand from storage,
// never holding plaintext longer than one call.
type UserCredentialSource struct {
	users *storage.UserRepository
	box   *crypto.Box
	log   *zap.Logger
}

// NewUserCredentialSource builds a UserCredentialSource.
func NewUserCredentialSource(users *storage.UserRepository, box *crypto.Box, log *zap.Logger) *UserCredentialSource {
	return &UserCredentialSource{users: users, box: box, log: log}
}

func (s *UserCredentialSource) Credentials(ctx context.Context, userID string) (Credentials, error) {
	encKey, encSecret, ok, err := s.users.EncryptedCredentials(ctx, userID)
	if err != nil {
		return Credentials{}, errors.Wrap(errors.KindPersistence, "exchange: loading encrypted credentials", err)
	}
	if !ok || encKey == "" || encSecret == "" {
		return Credentials{}, errors.New(errors.KindCredential, "exchange: no api credentials on file for user")
	}
	apiKey, err := s.box.Decrypt(encKey)
	if err != nil {
		return Credentials{}, err
	}
	secret, err := s.box.Decrypt(encSecret)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{APIKey: apiKey, Secret: secret}, nil
}
