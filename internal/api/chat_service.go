package api

import (
	"context"

	"github.com/matheus3301/quickchat/internal/backend"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	grpcstatus "google.golang.org/grpc/status"
)

// ChatService exposes backend.Service over gRPC.
type ChatService struct {
	svc    *backend.Service
	logger *zap.Logger
}

func NewChatService(svc *backend.Service, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{svc: svc, logger: logger.Named("api")}
}

func caller(ctx context.Context) (Caller, error) {
	c, ok := CallerFrom(ctx)
	if !ok {
		return Caller{}, grpcstatus.Error(codes.Unauthenticated, "not signed in")
	}
	return c, nil
}

func (s *ChatService) SignUp(ctx context.Context, req *SignUpRequest) (*AuthResponse, error) {
	return s.svc.SignUp(ctx, req.Email, req.Password, req.FullName, req.Phone)
}

func (s *ChatService) SignIn(ctx context.Context, req *SignInRequest) (*AuthResponse, error) {
	return s.svc.SignIn(ctx, req.Email, req.Password)
}

func (s *ChatService) SignOut(ctx context.Context, _ *Empty) (*Empty, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.svc.SignOut(ctx, c.Token); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (s *ChatService) WhoAmI(ctx context.Context, _ *Empty) (*WhoAmIResponse, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.svc.GetProfile(ctx, c.UserID)
	if err != nil {
		return nil, err
	}
	return &WhoAmIResponse{UserID: c.UserID, Profile: *p}, nil
}

func (s *ChatService) ListMessages(ctx context.Context, _ *Empty) (*ListMessagesResponse, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	msgs, err := s.svc.ListMessages(ctx, c.UserID)
	if err != nil {
		return nil, err
	}
	return &ListMessagesResponse{Messages: msgs}, nil
}

func (s *ChatService) SendMessage(ctx context.Context, req *SendMessageRequest) (*MessageResponse, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	m, err := s.svc.SendMessage(ctx, c.UserID, req.ReceiverID, req.Content)
	if err != nil {
		return nil, err
	}
	return &MessageResponse{Message: m}, nil
}

func (s *ChatService) MarkRead(ctx context.Context, req *IDRequest) (*MessageResponse, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	m, err := s.svc.MarkRead(ctx, c.UserID, req.ID)
	if err != nil {
		return nil, err
	}
	return &MessageResponse{Message: m}, nil
}

func (s *ChatService) DeleteMessage(ctx context.Context, req *IDRequest) (*Empty, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.svc.DeleteMessage(ctx, c.UserID, req.ID); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (s *ChatService) SearchMessages(ctx context.Context, req *SearchMessagesRequest) (*ListMessagesResponse, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	msgs, err := s.svc.SearchMessages(ctx, c.UserID, req.Query, req.Limit)
	if err != nil {
		return nil, err
	}
	return &ListMessagesResponse{Messages: msgs}, nil
}

func (s *ChatService) ReplaceContacts(ctx context.Context, req *ReplaceContactsRequest) (*Empty, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.svc.ReplaceContacts(ctx, c.UserID, req.Contacts); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (s *ChatService) MatchContacts(ctx context.Context, _ *Empty) (*MatchContactsResponse, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	matches, err := s.svc.MatchContacts(ctx, c.UserID)
	if err != nil {
		return nil, err
	}
	return &MatchContactsResponse{Matches: matches}, nil
}

func (s *ChatService) ListProfiles(ctx context.Context, _ *Empty) (*ListProfilesResponse, error) {
	profiles, err := s.svc.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	return &ListProfilesResponse{Profiles: profiles}, nil
}

func (s *ChatService) GetProfile(ctx context.Context, req *IDRequest) (*ProfileResponse, error) {
	p, err := s.svc.GetProfile(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return &ProfileResponse{Profile: p}, nil
}

func (s *ChatService) UpdateProfile(ctx context.Context, req *UpdateProfileRequest) (*ProfileResponse, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.svc.UpdateProfile(ctx, c.UserID, req.FullName, req.AvatarURL)
	if err != nil {
		return nil, err
	}
	return &ProfileResponse{Profile: p}, nil
}

// WatchMessages streams the caller's change events. The response header is sent
// once the subscription is in place, so a client that waits for it cannot miss
// events committed afterwards.
func (s *ChatService) WatchMessages(_ *WatchRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	c, err := caller(ctx)
	if err != nil {
		return err
	}
	events, stop, err := s.svc.Subscribe(ctx, c.UserID)
	if err != nil {
		return toStatus(err)
	}
	defer stop()

	if err := stream.SendHeader(metadata.Pairs("x-feed", "live")); err != nil {
		return err
	}
	s.logger.Debug("feed opened", zap.String("user_id", c.UserID))

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return grpcstatus.Error(codes.Unavailable, "change feed closed")
			}
			if err := stream.SendMsg(&evt); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
