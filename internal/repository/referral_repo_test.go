package repository

import (
	"context"
	"testing"

	"github.com/yuqie6/ActivityRank/internal/schema"
	"github.com/yuqie6/ActivityRank/internal/testutil"
)

func TestReferralRepositoryFirstJoinWins(t *testing.T) {
	repo := NewReferralRepository(testutil.OpenTestDB(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, &schema.ReferralRecord{ReferrerID: 1, ReferredID: 50})
	if err != nil || !created {
		t.Fatalf("first Create created=%v err=%v", created, err)
	}
	created, err = repo.Create(ctx, &schema.ReferralRecord{ReferrerID: 2, ReferredID: 50})
	if err != nil {
		t.Fatalf("second Create err=%v", err)
	}
	if created {
		t.Fatalf("second referral for same user must be ignored")
	}

	exists, err := repo.ExistsForReferred(ctx, 50)
	if err != nil || !exists {
		t.Fatalf("ExistsForReferred=%v err=%v", exists, err)
	}
	n, _ := repo.CountByReferrer(ctx, 1)
	if n != 1 {
		t.Fatalf("CountByReferrer(1)=%d, want 1", n)
	}
	n, _ = repo.CountByReferrer(ctx, 2)
	if n != 0 {
		t.Fatalf("CountByReferrer(2)=%d, want 0", n)
	}
}
