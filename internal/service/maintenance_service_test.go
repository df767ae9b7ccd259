package service

import (
	"context"
	"testing"
)

func TestMaintenance_PurgeAndBackfill(t *testing.T) {
	ledger := seedLedger(row(1, 3, t0), row(777, 5, t0), row(2, 1, t0))
	s := NewMaintenanceService(ledger, 0)
	ctx := context.Background()

	n, err := s.PurgeSubjects(ctx, []int64{777})
	if err != nil || n != 1 {
		t.Fatalf("purge n=%d err=%v", n, err)
	}
	if ledger.pointsOf(777) != 0 {
		t.Fatalf("bot rows remain")
	}

	n, err = s.BackfillDisplayName(ctx, Profile{UserID: 1, Username: "one"})
	if err != nil || n != 1 {
		t.Fatalf("backfill n=%d err=%v", n, err)
	}
	if n, _ := s.BackfillDisplayName(ctx, Profile{UserID: 2}); n != 0 {
		t.Fatalf("empty profile should be a no-op")
	}
}
