package api

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/quickchat/internal/backend"
	"github.com/matheus3301/quickchat/internal/bus"
	"github.com/matheus3301/quickchat/internal/feed"
	"github.com/matheus3301/quickchat/internal/model"
	"github.com/matheus3301/quickchat/internal/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	grpcstatus "google.golang.org/grpc/status"
)

// startServer runs a ChatService on a Unix socket and returns its address.
func startServer(t *testing.T) string {
	t.Helper()
	// Short path to stay under the Unix socket length limit.
	dir, err := os.MkdirTemp("/tmp", "qc-api-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	db, err := store.Open(filepath.Join(dir, "chat.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := zap.NewNop()
	svc := backend.NewService(db, feed.NewLocal(bus.New(), logger), nil, logger, backend.Options{BcryptCost: bcrypt.MinCost})
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryInterceptor(svc, logger)),
		grpc.ChainStreamInterceptor(StreamInterceptor(svc, logger)),
	)
	Register(srv, NewChatService(svc, logger))

	socket := filepath.Join(dir, "d.sock")
	lis, err := net.Listen("unix", socket)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return "unix://" + socket
}

func dial(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := Dial(addr, 5*time.Second, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func signUp(t *testing.T, c *Client, name, phone string) *AuthResponse {
	t.Helper()
	res, err := c.SignUp(context.Background(), SignUpRequest{
		Email: name + "@example.com", Password: "secret123", FullName: name, Phone: phone,
	})
	if err != nil {
		t.Fatalf("sign up %s: %v", name, err)
	}
	return res
}

func TestAuthRequired(t *testing.T) {
	c := dial(t, startServer(t))

	_, err := c.FetchMessages(context.Background())
	if !errors.Is(err, model.ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}

	c.SetToken("bogus")
	if _, err := c.WhoAmI(context.Background()); !errors.Is(err, model.ErrUnauthenticated) {
		t.Errorf("bogus token err = %v", err)
	}
	if _, _, err := c.Subscribe(context.Background()); !errors.Is(err, model.ErrUnauthenticated) {
		t.Errorf("subscribe err = %v, want ErrUnauthenticated", err)
	}
}

func TestSignUpWhoAmISignOut(t *testing.T) {
	c := dial(t, startServer(t))
	ctx := context.Background()
	res := signUp(t, c, "alice", "+1 555 000 0001")

	me, err := c.WhoAmI(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if me.UserID != res.UserID || me.Profile.PhoneNumber != "+15550000001" {
		t.Errorf("whoami = %+v", me)
	}

	if err := c.SignOut(ctx); err != nil {
		t.Fatal(err)
	}
	if c.Token() != "" {
		t.Error("token kept after sign out")
	}

	if _, err := c.SignIn(ctx, "alice@example.com", "nope-nope"); !errors.Is(err, model.ErrUnauthenticated) {
		t.Errorf("wrong password err = %v", err)
	}
	if _, err := c.SignIn(ctx, "alice@example.com", "secret123"); err != nil {
		t.Fatal(err)
	}
}

func TestMessagingOverFeed(t *testing.T) {
	addr := startServer(t)
	ctx := context.Background()
	alice := dial(t, addr)
	bob := dial(t, addr)
	a := signUp(t, alice, "alice", "")
	b := signUp(t, bob, "bob", "")

	events, stop, err := bob.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	m, err := alice.SendMessage(ctx, b.UserID, "hello bob")
	if err != nil {
		t.Fatal(err)
	}
	if m.SenderID != a.UserID || m.ID == "" {
		t.Errorf("message = %+v", m)
	}

	select {
	case evt := <-events:
		if evt.Kind != model.EventInsert || evt.New == nil || evt.New.ID != m.ID {
			t.Errorf("event = %+v", evt)
		}
		if !evt.New.CreatedAt.Equal(m.CreatedAt) {
			t.Errorf("created_at = %v, want %v", evt.New.CreatedAt, m.CreatedAt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for insert event")
	}

	if _, err := alice.MarkRead(ctx, m.ID); !errors.Is(err, model.ErrForbidden) {
		t.Errorf("sender mark read err = %v, want ErrForbidden", err)
	}
	if err := bob.DeleteMessage(ctx, m.ID); !errors.Is(err, model.ErrForbidden) {
		t.Errorf("receiver delete err = %v, want ErrForbidden", err)
	}
	if _, err := alice.SendMessage(ctx, b.UserID, "   "); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("blank send err = %v, want ErrInvalidArgument", err)
	}

	msgs, err := bob.FetchMessages(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hello bob" {
		t.Errorf("bob messages = %+v", msgs)
	}

	found, err := bob.SearchMessages(ctx, "hello", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 {
		t.Errorf("search found %d, want 1", len(found))
	}

	stop()
	select {
	case _, ok := <-events:
		for ok {
			_, ok = <-events
		}
	case <-time.After(2 * time.Second):
		t.Fatal("feed channel not closed after stop")
	}
}

func TestContactsAndProfiles(t *testing.T) {
	addr := startServer(t)
	ctx := context.Background()
	me := dial(t, addr)
	other := dial(t, addr)
	signUp(t, me, "me", "+15550000000")
	bob := signUp(t, other, "bob", "+15550000001")

	if err := me.ReplaceContacts(ctx, []model.Contact{{DisplayName: "Bobby", Phone: "+15550000001"}}); err != nil {
		t.Fatal(err)
	}
	matches, err := me.MatchContacts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].UserID != bob.UserID {
		t.Errorf("matches = %+v", matches)
	}

	profiles, err := me.ListProfiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 2 {
		t.Errorf("profiles = %+v", profiles)
	}

	p, err := other.UpdateProfile(ctx, "Robert", "")
	if err != nil {
		t.Fatal(err)
	}
	if p.FullName != "Robert" {
		t.Errorf("name = %q", p.FullName)
	}
	got, err := me.GetProfile(ctx, bob.UserID)
	if err != nil || got.FullName != "Robert" {
		t.Errorf("GetProfile = %+v, %v", got, err)
	}
	if _, err := me.GetProfile(ctx, "ghost"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestTokenSharedAcrossGoroutines(t *testing.T) {
	c := &Client{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.SetToken("tok-a")
				c.SetToken("")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				md, _ := metadata.FromOutgoingContext(c.outgoing(context.Background()))
				if got := md.Get(authorizationHeader); len(got) > 0 && got[0] != "Bearer tok-a" {
					t.Errorf("header = %q", got[0])
					return
				}
				_ = c.Token()
			}
		}()
	}
	wg.Wait()

	c.SetToken("final")
	md, ok := metadata.FromOutgoingContext(c.outgoing(context.Background()))
	if !ok || len(md.Get(authorizationHeader)) != 1 || md.Get(authorizationHeader)[0] != "Bearer final" {
		t.Errorf("metadata = %v", md)
	}
	if c.Token() != "final" {
		t.Errorf("token = %q", c.Token())
	}
}

func TestUnreachableServer(t *testing.T) {
	c := dial(t, "unix:///tmp/qc-does-not-exist.sock")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := c.SignIn(ctx, "a@example.com", "secret123"); !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{model.ErrInvalidArgument, codes.InvalidArgument},
		{model.ErrForbidden, codes.PermissionDenied},
		{model.ErrRateLimited, codes.ResourceExhausted},
		{model.ErrConflict, codes.AlreadyExists},
		{errors.New("disk on fire"), codes.Internal},
	}
	for _, tt := range tests {
		st := toStatus(tt.err)
		if grpcstatus.Code(st) != tt.code {
			t.Errorf("toStatus(%v) code = %s, want %s", tt.err, grpcstatus.Code(st), tt.code)
		}
	}
	if back := fromStatus(toStatus(model.ErrRateLimited)); !errors.Is(back, model.ErrRateLimited) {
		t.Errorf("round trip = %v", back)
	}
	if back := fromStatus(toStatus(errors.New("x"))); !errors.Is(back, model.ErrUnavailable) {
		t.Errorf("internal maps to %v, want ErrUnavailable", back)
	}
}
