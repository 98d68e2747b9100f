package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/wardenbot/warden/internal/db"
)

func newTestClient(t *testing.T) *sqliteClient {
	t.Helper()
	ctx := context.Background()
	client, err := NewSQLiteClient(ctx, t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("new sqlite client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestUserUpsertKeepsFirstSeen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := newTestClient(t)

	firstSeen := time.Now().Add(-time.Hour).UTC()
	if err := client.UpsertUser(ctx, &db.UserMeta{
		ID:          7,
		UserName:    "alice",
		DisplayName: "Alice",
		FirstSeenAt: &firstSeen,
		JoinedAt:    &firstSeen,
	}); err != nil {
		t.Fatalf("upsert user: %v", err)
	}

	later := time.Now().UTC()
	if err := client.UpsertUser(ctx, &db.UserMeta{
		ID:          7,
		UserName:    "alice_renamed",
		DisplayName: "Alice R",
		FirstSeenAt: &later,
		JoinedAt:    &later,
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	user, err := client.GetUser(ctx, 7)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user == nil {
		t.Fatal("user not found")
	}
	if user.UserName != "alice_renamed" {
		t.Errorf("username = %q, want updated", user.UserName)
	}
	if user.FirstSeenAt == nil || user.FirstSeenAt.Sub(firstSeen).Abs() > time.Second {
		t.Errorf("first seen = %v, want original %v", user.FirstSeenAt, firstSeen)
	}
}

func TestTouchUserActivityCountsMessages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := newTestClient(t)

	if err := client.UpsertUser(ctx, &db.UserMeta{ID: 8, UserName: "bob"}); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := client.TouchUserActivity(ctx, 8, time.Now()); err != nil {
			t.Fatalf("touch: %v", err)
		}
	}

	user, err := client.GetUser(ctx, 8)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.TotalMessages != 3 {
		t.Errorf("total messages = %d, want 3", user.TotalMessages)
	}
}

func TestGetUserMissing(t *testing.T) {
	t.Parallel()
	client := newTestClient(t)

	user, err := client.GetUser(context.Background(), 404)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user != nil {
		t.Errorf("missing user = %#v, want nil", user)
	}
}

func TestTrustRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := newTestClient(t)

	record := &db.TrustRecord{
		UserID:         7,
		Overall:        62.5,
		AccountAge:     80,
		Tier:           "trusted",
		LastCalculated: time.Now().UTC(),
	}
	if err := client.SaveTrust(ctx, record); err != nil {
		t.Fatalf("save trust: %v", err)
	}

	record.Overall = 44
	record.Tier = "member"
	if err := client.SaveTrust(ctx, record); err != nil {
		t.Fatalf("update trust: %v", err)
	}

	got, err := client.GetTrust(ctx, 7)
	if err != nil {
		t.Fatalf("get trust: %v", err)
	}
	if got == nil || got.Overall != 44 || got.Tier != "member" {
		t.Errorf("trust = %#v", got)
	}
}

func TestMessageHistoryLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := newTestClient(t)

	now := time.Now().UTC()
	for i := int64(0); i < 3; i++ {
		if err := client.AppendMessageHistory(ctx, &db.MessageEvent{
			MessageID:   100 + i,
			UserID:      7,
			ChatID:      10,
			ContentHash: "hash",
			CreatedAt:   now.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	events, err := client.QueryMessageHistory(ctx, 7, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	if err := client.CleanupMessageHistory(ctx, now.Add(time.Minute)); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	events, err = client.QueryMessageHistory(ctx, 7, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("query after cleanup: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("cleanup left %d events", len(events))
	}
}

func TestInsertFingerprintResolvesConflictOnPHash(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := newTestClient(t)

	fp := &db.Fingerprint{
		DHash:           "00000000000000aa",
		PHash:           "00000000000000bb",
		AHash:           "00000000000000cc",
		FirstSeenUserID: 1,
		FirstSeenChatID: 10,
		FirstSeenAt:     time.Now().UTC(),
	}
	firstID, err := client.InsertFingerprint(ctx, fp)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	dup := &db.Fingerprint{
		DHash:           "00000000000000aa",
		PHash:           "00000000000000bb",
		AHash:           "00000000000000cc",
		FirstSeenUserID: 2,
		FirstSeenChatID: 20,
		FirstSeenAt:     time.Now().UTC(),
	}
	secondID, err := client.InsertFingerprint(ctx, dup)
	if err != nil {
		t.Fatalf("conflicting insert: %v", err)
	}
	if secondID != firstID {
		t.Errorf("conflicting insert returned id %d, want %d", secondID, firstID)
	}

	stored, err := client.GetFingerprintByPHash(ctx, "00000000000000bb")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.TimesPosted != 2 {
		t.Errorf("times posted = %d, want 2", stored.TimesPosted)
	}
	if stored.FirstSeenUserID != 1 {
		t.Errorf("first seen user = %d, want original poster", stored.FirstSeenUserID)
	}
}

func TestFingerprintPostersAreUnique(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := newTestClient(t)

	id, err := client.InsertFingerprint(ctx, &db.Fingerprint{
		DHash: "01", PHash: "02", AHash: "03",
		FirstSeenUserID: 1, FirstSeenChatID: 10, FirstSeenAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	for _, tt := range []struct {
		userID int64
		want   bool
	}{
		{1, true},
		{1, false},
		{2, true},
	} {
		added, err := client.RecordFingerprintPoster(ctx, id, tt.userID)
		if err != nil {
			t.Fatalf("record poster %d: %v", tt.userID, err)
		}
		if added != tt.want {
			t.Errorf("poster %d added = %v, want %v", tt.userID, added, tt.want)
		}
	}

	fp, err := client.GetFingerprintByID(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fp.UniquePosters != 3 {
		t.Errorf("unique posters = %d, want 3 (first insert plus two recorded)", fp.UniquePosters)
	}
}

func TestReportsCountWithinWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := newTestClient(t)

	id, err := client.InsertFingerprint(ctx, &db.Fingerprint{
		DHash: "11", PHash: "12", AHash: "13",
		FirstSeenUserID: 1, FirstSeenChatID: 10, FirstSeenAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := client.InsertReport(ctx, &db.ImageReport{
		ID:            "report-1",
		FingerprintID: id,
		ReporterID:    100,
		Reason:        "spam",
		ReportedAt:    time.Now().UTC(),
	}); err != nil {
		t.Fatalf("insert report: %v", err)
	}

	recent, err := client.CountRecentReportsBy(ctx, id, 100, time.Now().Add(-time.Hour).UTC())
	if err != nil {
		t.Fatalf("count recent: %v", err)
	}
	if recent != 1 {
		t.Errorf("recent reports = %d, want 1", recent)
	}

	old, err := client.CountRecentReportsBy(ctx, id, 100, time.Now().Add(time.Hour).UTC())
	if err != nil {
		t.Fatalf("count outside window: %v", err)
	}
	if old != 0 {
		t.Errorf("reports after future cutoff = %d, want 0", old)
	}

	fp, err := client.GetFingerprintByID(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fp.ReportCount != 1 {
		t.Errorf("report count = %d, want 1", fp.ReportCount)
	}
}

func TestPromoteFingerprintSpam(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := newTestClient(t)

	id, err := client.InsertFingerprint(ctx, &db.Fingerprint{
		DHash: "21", PHash: "22", AHash: "23",
		FirstSeenUserID: 1, FirstSeenChatID: 10, FirstSeenAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := client.PromoteFingerprintSpam(ctx, id, "community_reported"); err != nil {
		t.Fatalf("promote: %v", err)
	}

	fp, err := client.GetFingerprintByID(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !fp.IsSpam || fp.SpamCategory != "community_reported" {
		t.Errorf("fingerprint = %#v, want promoted", fp)
	}
}

func TestActiveWarningsExcludeExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := newTestClient(t)

	expired := time.Now().Add(-time.Hour).UTC()
	active := time.Now().Add(time.Hour).UTC()

	for _, w := range []*db.Warning{
		{UserID: 7, ChatID: 10, Reason: "old", Severity: "low", IssuedAt: time.Now().Add(-2 * time.Hour).UTC(), ExpiresAt: &expired},
		{UserID: 7, ChatID: 10, Reason: "current", Severity: "high", IssuedAt: time.Now().UTC(), ExpiresAt: &active},
		{UserID: 7, ChatID: 10, Reason: "permanent", Severity: "low", IssuedAt: time.Now().UTC()},
	} {
		if _, err := client.AddWarning(ctx, w); err != nil {
			t.Fatalf("add warning: %v", err)
		}
	}

	count, err := client.GetActiveWarningCount(ctx, 7)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("active warnings = %d, want 2", count)
	}

	warnings, err := client.GetActiveWarnings(ctx, 7)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(warnings) != 2 {
		t.Errorf("listed %d warnings, want 2", len(warnings))
	}
}

func TestCreateCaseAssignsID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := newTestClient(t)

	created, err := client.CreateCase(ctx, &db.Case{
		Ref:         "case-ref-1",
		CaseType:    db.CaseTypeTimeout,
		UserID:      7,
		ChatID:      10,
		MessageID:   100,
		Reason:      "rate-spam",
		ActionTaken: "timeout",
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create case: %v", err)
	}
	if created.ID == 0 {
		t.Error("case id not assigned")
	}
}
