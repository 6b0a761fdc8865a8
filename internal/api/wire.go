package api

import (
	"github.com/matheus3301/quickchat/internal/backend"
	"github.com/matheus3301/quickchat/internal/model"
)

type Empty struct{}

type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse = backend.AuthResult

type WhoAmIResponse struct {
	UserID  string        `json:"user_id"`
	Profile model.Profile `json:"profile"`
}

type ListMessagesResponse struct {
	Messages []model.Message `json:"messages"`
}

type SendMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
}

type IDRequest struct {
	ID string `json:"id"`
}

type MessageResponse struct {
	Message *model.Message `json:"message"`
}

type SearchMessagesRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type ReplaceContactsRequest struct {
	Contacts []model.Contact `json:"contacts"`
}

type MatchContactsResponse struct {
	Matches []model.MatchedUser `json:"matches"`
}

type ListProfilesResponse struct {
	Profiles []model.Profile `json:"profiles"`
}

type ProfileResponse struct {
	Profile *model.Profile `json:"profile"`
}

type UpdateProfileRequest struct {
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
}

// WatchRequest opens the caller's change feed; stream messages are model.ChangeEvent.
type WatchRequest struct{}
