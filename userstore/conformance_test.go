package userstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runStoreConformance(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("create and read back", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(ctx, &Record{
			ID:             "6553f1000000000000000001",
			FirstName:      "Ada",
			LastName:       "Lovelace",
			Email:          "ada@example.com",
			HashedPassword: "$argon2id$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaA",
			Salt:           "c2FsdA",
			Organizations:  []string{"analytical"},
		})
		require.NoError(t, err)
		assert.False(t, created.CreatedAt.IsZero())

		byID, err := s.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada", byID.FirstName)
		assert.Equal(t, []string{"analytical"}, byID.Organizations)
		assert.True(t, byID.HasLocalCredential())

		byEmail, err := s.GetOneByField(ctx, FieldEmail, "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byEmail.ID)
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(ctx, &Record{ID: "a1", Email: "dup@example.com"})
		require.NoError(t, err)
		_, err = s.Create(ctx, &Record{ID: "a2", Email: "dup@example.com"})
		assert.ErrorIs(t, err, ErrDuplicateEmail)

		_, err = s.GetByID(ctx, "a2")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("duplicate id rejected", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(ctx, &Record{ID: "same", Email: "one@example.com"})
		require.NoError(t, err)
		_, err = s.Create(ctx, &Record{ID: "same", Email: "two@example.com"})
		assert.ErrorIs(t, err, ErrDuplicateID)
	})

	t.Run("lookup by linked identity", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(ctx, &Record{
			ID:    "g1",
			Email: "grace@example.com",
			OpenID: &ThirdPartyIdentity{
				Provider:      "google",
				Email:         "grace@example.com",
				EmailVerified: true,
				Subject:       "1234567890",
			},
		})
		require.NoError(t, err)

		got, err := s.GetOneByField(ctx, FieldOpenID, IdentityKey("google", "1234567890"))
		require.NoError(t, err)
		require.NotNil(t, got.OpenID)
		assert.Equal(t, "g1", got.ID)
		assert.True(t, got.OpenID.EmailVerified)
		assert.True(t, got.HasAuthMethod())
		assert.False(t, got.HasLocalCredential())

		_, err = s.GetOneByField(ctx, FieldOpenID, IdentityKey("facebook", "1234567890"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("partial update", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(ctx, &Record{ID: "u1", FirstName: "Old", Email: "u1@example.com"})
		require.NoError(t, err)

		verified := true
		name := "New"
		updated, err := s.UpdateByID(ctx, "u1", Update{FirstName: &name, EmailVerified: &verified})
		require.NoError(t, err)
		assert.Equal(t, "New", updated.FirstName)
		assert.True(t, updated.EmailVerified)
		assert.Equal(t, "u1@example.com", updated.Email)

		_, err = s.UpdateByID(ctx, "missing", Update{FirstName: &name})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update to taken email rejected", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(ctx, &Record{ID: "x1", Email: "x1@example.com"})
		require.NoError(t, err)
		_, err = s.Create(ctx, &Record{ID: "x2", Email: "x2@example.com"})
		require.NoError(t, err)

		taken := "x1@example.com"
		_, err = s.UpdateByID(ctx, "x2", Update{Email: &taken})
		assert.ErrorIs(t, err, ErrDuplicateEmail)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(ctx, &Record{ID: "d1", Email: "d1@example.com"})
		require.NoError(t, err)
		require.NoError(t, s.DeleteByID(ctx, "d1"))
		assert.ErrorIs(t, s.DeleteByID(ctx, "d1"), ErrNotFound)

		_, err = s.GetOneByField(ctx, FieldEmail, "d1@example.com")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.Create(ctx, &Record{ID: "d2", Email: "d1@example.com"})
		assert.NoError(t, err)
	})

	t.Run("unsupported field", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetOneByField(ctx, Field("phone"), "123")
		assert.ErrorIs(t, err, ErrUnsupportedField)
	})
}
