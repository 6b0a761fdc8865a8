package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/matheus3301/quickchat/internal/model"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// DefaultTimeout bounds unary calls whose context carries no deadline.
const DefaultTimeout = 10 * time.Second

// Client is a ChatService connection acting for one signed-in user. It serves as
// the remote side of the message store and the contact matcher.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.RWMutex
	token string
}

// Dial connects to a chatd address ("unix:///path/to.sock" or "host:port").
// The connection is lazy: an unreachable server surfaces on the first call.
func Dial(address string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	conn, err := grpc.NewClient(address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{conn: conn, timeout: timeout, logger: logger.Named("client")}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// SetToken sets the bearer token sent with every call.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	token := c.Token()
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, authorizationHeader, "Bearer "+token)
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := c.conn.Invoke(c.outgoing(ctx), FullMethod(method), req, resp); err != nil {
		return fromStatus(err)
	}
	return nil
}

// SignUp creates an account and keeps the issued token.
func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.invoke(ctx, MethodSignUp, &req, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// SignIn exchanges credentials for a token and keeps it.
func (c *Client) SignIn(ctx context.Context, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.invoke(ctx, MethodSignIn, &SignInRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// SignOut revokes the current token and forgets it.
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.invoke(ctx, MethodSignOut, &Empty{}, &Empty{}); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}

func (c *Client) WhoAmI(ctx context.Context) (*WhoAmIResponse, error) {
	var resp WhoAmIResponse
	if err := c.invoke(ctx, MethodWhoAmI, &Empty{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) FetchMessages(ctx context.Context) ([]model.Message, error) {
	var resp ListMessagesResponse
	if err := c.invoke(ctx, MethodListMessages, &Empty{}, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *Client) SendMessage(ctx context.Context, receiverID, content string) (*model.Message, error) {
	var resp MessageResponse
	if err := c.invoke(ctx, MethodSendMessage, &SendMessageRequest{ReceiverID: receiverID, Content: content}, &resp); err != nil {
		return nil, err
	}
	return resp.Message, nil
}

func (c *Client) MarkRead(ctx context.Context, messageID string) (*model.Message, error) {
	var resp MessageResponse
	if err := c.invoke(ctx, MethodMarkRead, &IDRequest{ID: messageID}, &resp); err != nil {
		return nil, err
	}
	return resp.Message, nil
}

func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.invoke(ctx, MethodDeleteMessage, &IDRequest{ID: messageID}, &Empty{})
}

func (c *Client) SearchMessages(ctx context.Context, query string, limit int) ([]model.Message, error) {
	var resp ListMessagesResponse
	if err := c.invoke(ctx, MethodSearchMessages, &SearchMessagesRequest{Query: query, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *Client) ReplaceContacts(ctx context.Context, contacts []model.Contact) error {
	return c.invoke(ctx, MethodReplaceContacts, &ReplaceContactsRequest{Contacts: contacts}, &Empty{})
}

func (c *Client) MatchContacts(ctx context.Context) ([]model.MatchedUser, error) {
	var resp MatchContactsResponse
	if err := c.invoke(ctx, MethodMatchContacts, &Empty{}, &resp); err != nil {
		return nil, err
	}
	return resp.Matches, nil
}

func (c *Client) ListProfiles(ctx context.Context) ([]model.Profile, error) {
	var resp ListProfilesResponse
	if err := c.invoke(ctx, MethodListProfiles, &Empty{}, &resp); err != nil {
		return nil, err
	}
	return resp.Profiles, nil
}

func (c *Client) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	var resp ProfileResponse
	if err := c.invoke(ctx, MethodGetProfile, &IDRequest{ID: userID}, &resp); err != nil {
		return nil, err
	}
	return resp.Profile, nil
}

func (c *Client) UpdateProfile(ctx context.Context, fullName, avatarURL string) (*model.Profile, error) {
	var resp ProfileResponse
	if err := c.invoke(ctx, MethodUpdateProfile, &UpdateProfileRequest{FullName: fullName, AvatarURL: avatarURL}, &resp); err != nil {
		return nil, err
	}
	return resp.Profile, nil
}

// Subscribe opens the live change feed. It returns once the server confirms the
// subscription. The channel closes when the stream ends for any reason.
func (c *Client) Subscribe(ctx context.Context) (<-chan model.ChangeEvent, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	stream, err := c.conn.NewStream(c.outgoing(ctx), &watchStream, FullMethod(MethodWatchMessages))
	if err != nil {
		cancel()
		return nil, nil, fromStatus(err)
	}
	if err := stream.SendMsg(&WatchRequest{}); err != nil {
		cancel()
		return nil, nil, fromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, nil, fromStatus(err)
	}
	md, err := stream.Header()
	if err == nil && md == nil {
		// Ended without headers: the status is only available from RecvMsg.
		if err = stream.RecvMsg(&model.ChangeEvent{}); err == nil || errors.Is(err, io.EOF) {
			err = fmt.Errorf("change feed refused: %w", model.ErrUnavailable)
		}
	}
	if err != nil {
		cancel()
		return nil, nil, fromStatus(err)
	}

	out := make(chan model.ChangeEvent, 64)
	go func() {
		defer close(out)
		for {
			var evt model.ChangeEvent
			if err := stream.RecvMsg(&evt); err != nil {
				if ctx.Err() == nil {
					c.logger.Warn("change feed ended", zap.Error(fromStatus(err)))
				}
				return
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, cancel, nil
}
