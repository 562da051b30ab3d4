package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/Johanhagos/mijn-api/internal/apikey/domain"
	"github.com/Johanhagos/mijn-api/internal/clock"
	"github.com/Johanhagos/mijn-api/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	apiKeyPrefix      = "mk_live_"
	apiKeySecretBytes = 32
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("apikey.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) EnsureForMerchant(ctx context.Context, merchantID string) (*domain.APIKey, string, bool, error) {
	merchantID = strings.TrimSpace(merchantID)
	if merchantID == "" {
		return nil, "", false, domain.ErrInvalidMerchant
	}

	existing, err := s.repo.FindByMerchantID(ctx, s.db, merchantID)
	if err != nil {
		return nil, "", false, err
	}
	if existing != nil {
		return existing, "", false, nil
	}

	now := s.clock.Now()
	id := s.genID.Generate()
	keyID := newKeyID(id)
	plain, hash, err := generateAPIKey(keyID)
	if err != nil {
		return nil, "", false, err
	}

	key := &domain.APIKey{
		ID:         id,
		MerchantID: merchantID,
		KeyID:      keyID,
		Scopes:     append([]string(nil), domain.DefaultScopes...),
		KeyHash:    hash,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Insert(ctx, s.db, key); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return nil, "", false, err
		}
		// A concurrent payment for the same merchant created it first.
		existing, findErr := s.repo.FindByMerchantID(ctx, s.db, merchantID)
		if findErr != nil {
			return nil, "", false, findErr
		}
		if existing == nil {
			return nil, "", false, err
		}
		return existing, "", false, nil
	}

	s.log.Info("api key issued",
		zap.String("merchant_id", merchantID),
		zap.String("key_id", keyID),
	)
	return key, plain, true, nil
}

// Authenticate resolves a plaintext key to its active record.
func (s *Service) Authenticate(ctx context.Context, plain string) (*domain.APIKey, error) {
	keyID, ok := keyIDFromPlain(strings.TrimSpace(plain))
	if !ok {
		return nil, domain.ErrInvalidKey
	}
	key, err := s.repo.FindByKeyID(ctx, s.db, keyID)
	if err != nil {
		return nil, err
	}
	if key == nil || !key.IsActive {
		return nil, domain.ErrInvalidKey
	}
	if !key.Matches(strings.TrimSpace(plain)) {
		return nil, domain.ErrInvalidKey
	}
	return key, nil
}

func generateAPIKey(keyID string) (string, string, error) {
	secret := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", "", err
	}

	secretPart := hex.EncodeToString(secret)
	trimmed := strings.TrimPrefix(keyID, "key_")
	plain := fmt.Sprintf("%s%s_%s", apiKeyPrefix, trimmed, secretPart)
	return plain, domain.HashSecret(plain), nil
}

func keyIDFromPlain(plain string) (string, bool) {
	rest, ok := strings.CutPrefix(plain, apiKeyPrefix)
	if !ok {
		return "", false
	}
	idPart, _, ok := strings.Cut(rest, "_")
	if !ok || idPart == "" {
		return "", false
	}
	return "key_" + idPart, true
}

func newKeyID(id snowflake.ID) string {
	return "key_" + strings.ToUpper(strconv.FormatInt(int64(id), 36))
}
