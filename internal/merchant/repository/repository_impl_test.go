package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Johanhagos/mijn-api/internal/config"
	"github.com/Johanhagos/mijn-api/internal/merchant/domain"
	"github.com/Johanhagos/mijn-api/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSellerCountry(t *testing.T) {
	conn := dbtest.Open(t, &domain.Merchant{})
	require.NoError(t, conn.Create(&domain.Merchant{ID: "m_de", Name: "Shop", Country: "de", CreatedAt: time.Now()}).Error)
	require.NoError(t, conn.Create(&domain.Merchant{ID: "m_blank", Name: "Blank", Country: " ", CreatedAt: time.Now()}).Error)

	dir := NewDirectory(conn, config.Config{Tax: config.TaxConfig{DefaultSellerCountry: "nl"}}, zap.NewNop())
	ctx := context.Background()

	country, err := dir.SellerCountry(ctx, "m_de")
	require.NoError(t, err)
	assert.Equal(t, "DE", country)

	country, err = dir.SellerCountry(ctx, "m_blank")
	require.NoError(t, err)
	assert.Equal(t, "NL", country)

	country, err = dir.SellerCountry(ctx, "m_missing")
	require.NoError(t, err)
	assert.Equal(t, "NL", country)

	_, err = dir.Get(ctx, "m_missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSellerCountryStoreDown(t *testing.T) {
	conn := dbtest.Open(t)
	dir := NewDirectory(conn, config.Config{}, zap.NewNop())

	_, err := dir.SellerCountry(context.Background(), "m_1")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}
