package service

import (
	"context"
	"sync"
	"time"

	"github.com/yuqie6/ActivityRank/internal/eventbus"
	"github.com/yuqie6/ActivityRank/internal/schema"
)

// ===== Mock Implementations =====

type fakeLedger struct {
	mu     sync.Mutex
	rows   []schema.ActivityEvent
	nextID int64
	err    error // 所有调用统一返回的错误
}

func (f *fakeLedger) Insert(ctx context.Context, event *schema.ActivityEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if event.DedupKey != nil {
		for _, r := range f.rows {
			if r.DedupKey != nil && *r.DedupKey == *event.DedupKey {
				return ErrDuplicate
			}
		}
	}
	f.nextID++
	event.ID = f.nextID
	f.rows = append(f.rows, *event)
	return nil
}

func (f *fakeLedger) BatchInsert(ctx context.Context, events []schema.ActivityEvent) (int64, error) {
	var n int64
	for i := range events {
		err := f.Insert(ctx, &events[i])
		if err == ErrDuplicate {
			continue
		}
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (f *fakeLedger) ExistsComment(ctx context.Context, userID, postID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	for _, r := range f.rows {
		if r.Kind == schema.KindComment && r.UserID == userID && r.PostID != nil && *r.PostID == postID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLedger) CountComments(ctx context.Context, postID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	var n int64
	for _, r := range f.rows {
		if r.Kind == schema.KindComment && r.PostID != nil && *r.PostID == postID {
			n++
		}
	}
	return n, nil
}

func (f *fakeLedger) FindPostTimestamp(ctx context.Context, postID int64) (*int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, r := range f.rows {
		if r.PostID != nil && *r.PostID == postID && r.PostTimestamp != nil {
			v := *r.PostTimestamp
			return &v, nil
		}
	}
	return nil, nil
}

func (f *fakeLedger) ListSince(ctx context.Context, sinceMs int64) ([]schema.ActivityEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]schema.ActivityEvent, 0, len(f.rows))
	for _, r := range f.rows {
		if sinceMs <= 0 || r.Timestamp >= sinceMs {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeLedger) ListAll(ctx context.Context) ([]schema.ActivityEvent, error) {
	return f.ListSince(ctx, 0)
}

func (f *fakeLedger) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := f.rows[:0]
	var n int64
	for _, r := range f.rows {
		if _, ok := drop[r.ID]; ok {
			n++
			continue
		}
		kept = append(kept, r)
	}
	f.rows = kept
	return n, nil
}

func (f *fakeLedger) DeleteByUserIDs(ctx context.Context, userIDs []int64) (int64, error) {
	f.mu.Lock()
	var ids []int64
	for _, r := range f.rows {
		for _, u := range userIDs {
			if r.UserID == u {
				ids = append(ids, r.ID)
			}
		}
	}
	f.mu.Unlock()
	return f.DeleteByIDs(ctx, ids)
}

func (f *fakeLedger) BackfillNames(ctx context.Context, userID int64, username, firstName string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	var n int64
	for i := range f.rows {
		if f.rows[i].UserID != userID {
			continue
		}
		if f.rows[i].Username == nil && username != "" {
			f.rows[i].Username = schema.StrPtr(username)
			n++
		}
		if f.rows[i].FirstName == nil && firstName != "" {
			f.rows[i].FirstName = schema.StrPtr(firstName)
			n++
		}
	}
	return n, nil
}

func (f *fakeLedger) snapshot() []schema.ActivityEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]schema.ActivityEvent, len(f.rows))
	copy(out, f.rows)
	return out
}

func (f *fakeLedger) countKind(kind schema.Kind) int {
	n := 0
	for _, r := range f.snapshot() {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

func (f *fakeLedger) pointsOf(userID int64) int {
	total := 0
	for _, r := range f.snapshot() {
		if r.UserID == userID {
			total += r.Points
		}
	}
	return total
}

type fakeReferrals struct {
	mu      sync.Mutex
	records []schema.ReferralRecord
	err     error
}

func (f *fakeReferrals) ExistsForReferred(ctx context.Context, referredID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	for _, r := range f.records {
		if r.ReferredID == referredID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeReferrals) Create(ctx context.Context, record *schema.ReferralRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	for _, r := range f.records {
		if r.ReferredID == record.ReferredID {
			return false, nil
		}
	}
	f.records = append(f.records, *record)
	return true, nil
}

func (f *fakeReferrals) CountByReferrer(ctx context.Context, referrerID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.records {
		if r.ReferrerID == referrerID {
			n++
		}
	}
	return n, nil
}

type fakeArchive struct {
	rows []schema.ArchivedActivity
	err  error
}

func (f *fakeArchive) BatchInsert(ctx context.Context, rows []schema.ArchivedActivity) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.rows = append(f.rows, rows...)
	return int64(len(rows)), nil
}

type fakeMembers struct {
	mu      sync.Mutex
	members map[int64]bool
}

func (f *fakeMembers) IsMember(ctx context.Context, userID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[userID]
}

func (f *fakeMembers) set(userID int64, member bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members == nil {
		f.members = make(map[int64]bool)
	}
	f.members[userID] = member
}

type sentNotice struct {
	userID int64
	text   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
	err  error
}

func (f *fakeNotifier) Notify(ctx context.Context, userID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotice{userID: userID, text: text})
	return f.err
}

type fakeBus struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (f *fakeBus) Publish(evt eventbus.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
