package members

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/librarydesk/librarydesk/internal/database"
	"github.com/librarydesk/librarydesk/internal/entities"
)

func setupTestDB(t *testing.T) (*Repository, *gorm.DB) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "members.db"), logger.Silent)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db.DB), db.DB
}

func strPtr(s string) *string { return &s }

func requireReason(t *testing.T, err error, reason string) {
	t.Helper()
	de, ok := database.AsDomainError(err)
	require.True(t, ok, "expected domain error, got %v", err)
	assert.Equal(t, reason, de.Reason)
}

func TestRepository_CreateMember(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	member := &entities.Member{Name: "Ann Lee", Username: "ann", Email: strPtr(" Ann@Example.com ")}
	require.NoError(t, repo.CreateMember(ctx, member))

	assert.NotZero(t, member.ID)
	assert.Equal(t, "ann@example.com", *member.Email)
	assert.False(t, member.MembershipDate.IsZero())
	assert.False(t, member.EmailVerified)
}

func TestRepository_CreateMember_Duplicates(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateMember(ctx, &entities.Member{Name: "Ann", Username: "ann", Email: strPtr("ann@example.com")}))

	err := repo.CreateMember(ctx, &entities.Member{Name: "Other Ann", Username: "ann", Email: strPtr("other@example.com")})
	requireReason(t, err, database.ReasonDuplicateUsername)

	err = repo.CreateMember(ctx, &entities.Member{Name: "Ann Two", Username: "ann2", Email: strPtr("ANN@example.com")})
	requireReason(t, err, database.ReasonDuplicateEmail)

	count, err := repo.CountMembers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRepository_CreateMember_MembersWithoutEmail(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateMember(ctx, &entities.Member{Name: "Walk-in One", Username: "walkin1"}))
	require.NoError(t, repo.CreateMember(ctx, &entities.Member{Name: "Walk-in Two", Username: "walkin2", Email: strPtr("")}))
}

func TestRepository_CreateMember_AdminNeedsCredentials(t *testing.T) {
	repo, _ := setupTestDB(t)

	err := repo.CreateMember(context.Background(), &entities.Member{Name: "Boss", Username: "boss", IsAdmin: true})
	requireReason(t, err, database.ReasonAdminCredentials)
}

func TestRepository_GetMemberByIdentifier(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	created := &entities.Member{Name: "Ann", Username: "ann", Email: strPtr("ann@example.com")}
	require.NoError(t, repo.CreateMember(ctx, created))

	byUsername, err := repo.GetMemberByIdentifier(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byUsername.ID)

	byEmail, err := repo.GetMemberByIdentifier(ctx, "ANN@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	_, err = repo.GetMemberByIdentifier(ctx, "nobody")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestRepository_UpdateMember(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	ann := &entities.Member{Name: "Ann", Username: "ann", Email: strPtr("ann@example.com"), EmailVerified: true}
	bob := &entities.Member{Name: "Bob", Username: "bob"}
	require.NoError(t, repo.CreateMember(ctx, ann))
	require.NoError(t, repo.CreateMember(ctx, bob))

	rating := 4
	updated, err := repo.UpdateMember(ctx, ann.ID, Update{
		Name:        strPtr("Ann Lee"),
		Email:       strPtr("ann.lee@example.com"),
		AdminRating: &rating,
	})
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", updated.Name)
	assert.Equal(t, 4, *updated.AdminRating)
	assert.False(t, updated.EmailVerified, "changing email requires re-verification")

	zero := 0
	updated, err = repo.UpdateMember(ctx, ann.ID, Update{AdminRating: &zero})
	require.NoError(t, err)
	assert.Nil(t, updated.AdminRating)

	_, err = repo.UpdateMember(ctx, bob.ID, Update{Username: strPtr("ann")})
	requireReason(t, err, database.ReasonDuplicateUsername)

	_, err = repo.UpdateMember(ctx, bob.ID, Update{Email: strPtr("ann.lee@example.com")})
	requireReason(t, err, database.ReasonDuplicateEmail)
}

func TestRepository_DeleteMember(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()

	book := entities.Book{Title: "Dune", Author: "Herbert", TotalCopies: 2, AvailableCopies: 1}
	require.NoError(t, db.Create(&book).Error)

	idle := &entities.Member{Name: "Idle", Username: "idle"}
	active := &entities.Member{Name: "Active", Username: "active"}
	former := &entities.Member{Name: "Former", Username: "former"}
	for _, m := range []*entities.Member{idle, active, former} {
		require.NoError(t, repo.CreateMember(ctx, m))
	}

	now := time.Now()
	require.NoError(t, db.Create(&entities.Borrowing{
		BookID: book.ID, UserID: active.ID, BorrowDate: now, DueDate: now, Status: entities.BorrowingStatusBorrowed,
	}).Error)
	require.NoError(t, db.Create(&entities.Borrowing{
		BookID: book.ID, UserID: former.ID, BorrowDate: now, DueDate: now, ReturnDate: &now, Status: entities.BorrowingStatusReturned,
	}).Error)

	require.NoError(t, repo.DeleteMember(ctx, idle.ID))
	requireReason(t, repo.DeleteMember(ctx, active.ID), database.ReasonMemberHasActiveBorrowing)
	requireReason(t, repo.DeleteMember(ctx, former.ID), database.ReasonMemberHasHistory)
}

func TestRepository_VerificationTokens(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	fresh := &entities.Member{Name: "Fresh", Username: "fresh", Email: strPtr("fresh@example.com")}
	stale := &entities.Member{Name: "Stale", Username: "stale", Email: strPtr("stale@example.com")}
	require.NoError(t, repo.CreateMember(ctx, fresh))
	require.NoError(t, repo.CreateMember(ctx, stale))

	require.NoError(t, repo.SetVerificationToken(ctx, fresh.ID, "hash-fresh", now.Add(time.Hour)))
	require.NoError(t, repo.SetVerificationToken(ctx, stale.ID, "hash-stale", now.Add(-time.Hour)))

	found, err := repo.GetMemberByVerificationToken(ctx, "hash-fresh")
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, found.ID)

	cleared, err := repo.ClearExpiredVerificationTokens(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared)

	_, err = repo.GetMemberByVerificationToken(ctx, "hash-stale")
	assert.ErrorIs(t, err, database.ErrNotFound)

	require.NoError(t, repo.MarkEmailVerified(ctx, fresh.ID))
	verified, err := repo.GetMemberByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.True(t, verified.EmailVerified)
	assert.Nil(t, verified.EmailVerificationToken)
}

func TestRepository_LoginBookkeeping(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	member := &entities.Member{Name: "Ann", Username: "ann"}
	require.NoError(t, repo.CreateMember(ctx, member))

	locked := time.Now().Add(time.Hour)
	require.NoError(t, repo.RecordFailedLogin(ctx, member.ID, nil))
	require.NoError(t, repo.RecordFailedLogin(ctx, member.ID, &locked))

	got, err := repo.GetMemberByID(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.FailedLoginCount)
	require.NotNil(t, got.LockedUntil)

	require.NoError(t, repo.RecordLogin(ctx, member.ID, time.Now()))
	got, err = repo.GetMemberByID(ctx, member.ID)
	require.NoError(t, err)
	assert.Zero(t, got.FailedLoginCount)
	assert.Nil(t, got.LockedUntil)
	assert.NotNil(t, got.LastLoginAt)
}
