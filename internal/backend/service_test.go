package backend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/quickchat/internal/bus"
	"github.com/matheus3301/quickchat/internal/feed"
	"github.com/matheus3301/quickchat/internal/model"
	"github.com/matheus3301/quickchat/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/crypto/bcrypt"
)

func testService(t *testing.T, opts Options) *Service {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.MinCost
	}
	return NewService(db, feed.NewLocal(bus.New(), nil), NewMetrics(prometheus.NewRegistry()), nil, opts)
}

func signUp(t *testing.T, s *Service, name, phone string) *AuthResult {
	t.Helper()
	res, err := s.SignUp(context.Background(), name+"@example.com", "secret123", name, phone)
	if err != nil {
		t.Fatalf("sign up %s: %v", name, err)
	}
	return res
}

func TestSignUpAndSignIn(t *testing.T) {
	s := testService(t, Options{})
	ctx := context.Background()

	res, err := s.SignUp(ctx, "  Alice@Example.com ", "secret123", " Alice ", "+1 (555) 000-0001")
	if err != nil {
		t.Fatal(err)
	}
	if res.Profile.FullName != "Alice" || res.Profile.PhoneNumber != "+15550000001" {
		t.Errorf("profile = %+v", res.Profile)
	}
	if id, err := s.Authenticate(ctx, res.Token); err != nil || id != res.UserID {
		t.Errorf("Authenticate = %q, %v", id, err)
	}

	in, err := s.SignIn(ctx, "alice@example.com", "secret123")
	if err != nil {
		t.Fatal(err)
	}
	if in.UserID != res.UserID || in.Token == res.Token {
		t.Errorf("sign in = %+v", in)
	}

	if _, err := s.SignIn(ctx, "alice@example.com", "wrong-pass"); !errors.Is(err, model.ErrUnauthenticated) {
		t.Errorf("wrong password err = %v", err)
	}
	if _, err := s.SignIn(ctx, "nobody@example.com", "secret123"); !errors.Is(err, model.ErrUnauthenticated) {
		t.Errorf("unknown email err = %v", err)
	}
	if _, err := s.SignUp(ctx, "alice@example.com", "secret123", "Again", ""); !errors.Is(err, model.ErrConflict) {
		t.Errorf("duplicate sign up err = %v", err)
	}

	if err := s.SignOut(ctx, in.Token); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Authenticate(ctx, in.Token); !errors.Is(err, model.ErrUnauthenticated) {
		t.Errorf("revoked token err = %v", err)
	}
	if got := testutil.ToFloat64(s.metrics.SignIns); got != 2 {
		t.Errorf("sign_ins_total = %v, want 2", got)
	}
}

func TestSignUpValidation(t *testing.T) {
	s := testService(t, Options{})
	tests := []struct {
		email, password, name string
	}{
		{"not-an-email", "secret123", "A"},
		{"a@example.com", "123", "A"},
		{"a@example.com", "secret123", "   "},
	}
	for _, tt := range tests {
		_, err := s.SignUp(context.Background(), tt.email, tt.password, tt.name, "")
		if !errors.Is(err, model.ErrInvalidArgument) {
			t.Errorf("SignUp(%q, %q, %q) err = %v, want ErrInvalidArgument", tt.email, tt.password, tt.name, err)
		}
	}
}

func TestExpiredToken(t *testing.T) {
	s := testService(t, Options{TokenTTL: time.Minute})
	res := signUp(t, s, "alice", "")

	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, err := s.Authenticate(context.Background(), res.Token); !errors.Is(err, model.ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}
	if n, err := s.PruneSessions(context.Background()); err != nil || n != 1 {
		t.Errorf("PruneSessions = %d, %v", n, err)
	}
}

func TestMessageLifecyclePublishesEvents(t *testing.T) {
	s := testService(t, Options{})
	ctx := context.Background()
	alice := signUp(t, s, "alice", "")
	bob := signUp(t, s, "bob", "")
	carol := signUp(t, s, "carol", "")

	bobFeed, stopBob, err := s.Subscribe(ctx, bob.UserID)
	if err != nil {
		t.Fatal(err)
	}
	defer stopBob()
	carolFeed, stopCarol, err := s.Subscribe(ctx, carol.UserID)
	if err != nil {
		t.Fatal(err)
	}
	defer stopCarol()

	m, err := s.SendMessage(ctx, alice.UserID, bob.UserID, "  hi bob ")
	if err != nil {
		t.Fatal(err)
	}
	if m.Content != "hi bob" || m.IsRead {
		t.Errorf("message = %+v", m)
	}
	expect(t, bobFeed, model.EventInsert, m.ID)

	if _, err := s.MarkRead(ctx, alice.UserID, m.ID); !errors.Is(err, model.ErrForbidden) {
		t.Errorf("sender mark read err = %v, want ErrForbidden", err)
	}
	read, err := s.MarkRead(ctx, bob.UserID, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !read.IsRead {
		t.Error("message not read")
	}
	expect(t, bobFeed, model.EventUpdate, m.ID)

	// Already read: no second event.
	if _, err := s.MarkRead(ctx, bob.UserID, m.ID); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteMessage(ctx, bob.UserID, m.ID); !errors.Is(err, model.ErrForbidden) {
		t.Errorf("receiver delete err = %v, want ErrForbidden", err)
	}
	if err := s.DeleteMessage(ctx, alice.UserID, m.ID); err != nil {
		t.Fatal(err)
	}
	expect(t, bobFeed, model.EventDelete, m.ID)

	select {
	case evt := <-carolFeed:
		t.Errorf("carol saw %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}

	msgs, err := s.ListMessages(ctx, bob.UserID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("bob has %d messages, want 0", len(msgs))
	}
}

func expect(t *testing.T, ch <-chan model.ChangeEvent, kind model.EventKind, id string) {
	t.Helper()
	select {
	case evt := <-ch:
		if evt.Kind != kind || evt.Row().ID != id {
			t.Errorf("event = %s %s, want %s %s", evt.Kind, evt.Row().ID, kind, id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s", kind)
	}
}

func TestSendValidation(t *testing.T) {
	s := testService(t, Options{})
	ctx := context.Background()
	alice := signUp(t, s, "alice", "")

	if _, err := s.SendMessage(ctx, alice.UserID, "ghost", "hi"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown receiver err = %v, want ErrNotFound", err)
	}
	if _, err := s.SendMessage(ctx, alice.UserID, alice.UserID, "   "); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("blank err = %v, want ErrInvalidArgument", err)
	}
}

func TestSendRateLimit(t *testing.T) {
	s := testService(t, Options{SendRate: 0.001, SendBurst: 2})
	ctx := context.Background()
	alice := signUp(t, s, "alice", "")
	bob := signUp(t, s, "bob", "")

	for i := 0; i < 2; i++ {
		if _, err := s.SendMessage(ctx, alice.UserID, bob.UserID, "hi"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.SendMessage(ctx, alice.UserID, bob.UserID, "hi"); !errors.Is(err, model.ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited", err)
	}
	// Buckets are per sender.
	if _, err := s.SendMessage(ctx, bob.UserID, alice.UserID, "hi"); err != nil {
		t.Errorf("bob blocked by alice's bucket: %v", err)
	}
	if got := testutil.ToFloat64(s.metrics.RateLimited); got != 1 {
		t.Errorf("rate limited counter = %v, want 1", got)
	}
}

func TestContactMatching(t *testing.T) {
	s := testService(t, Options{})
	ctx := context.Background()
	me := signUp(t, s, "me", "+1 555 000 0000")
	bob := signUp(t, s, "bob", "+1 555 000 0001")
	signUp(t, s, "carol", "+1 555 000 0002")

	book := []model.Contact{
		{DisplayName: "Bobby", Phone: "+1-555-000-0001"},
		{DisplayName: "", Phone: "+1 555 000 0009"},
		{DisplayName: "Me", Phone: "+15550000000"},
		{DisplayName: "Empty", Phone: " - "},
	}
	if err := s.ReplaceContacts(ctx, me.UserID, book); err != nil {
		t.Fatal(err)
	}
	matches, err := s.MatchContacts(ctx, me.UserID)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].UserID != bob.UserID || matches[0].ContactName != "Bobby" {
		t.Errorf("matches = %+v", matches)
	}
}

func TestUpdateProfile(t *testing.T) {
	s := testService(t, Options{})
	ctx := context.Background()
	alice := signUp(t, s, "alice", "")

	if _, err := s.UpdateProfile(ctx, alice.UserID, "  ", ""); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
	p, err := s.UpdateProfile(ctx, alice.UserID, "Alice L.", "")
	if err != nil {
		t.Fatal(err)
	}
	if p.FullName != "Alice L." {
		t.Errorf("name = %q", p.FullName)
	}
	got, err := s.GetProfile(ctx, alice.UserID)
	if err != nil || got.FullName != "Alice L." {
		t.Errorf("GetProfile = %+v, %v", got, err)
	}
}
