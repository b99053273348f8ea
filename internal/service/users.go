package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/Shivanand-hulikatti/ppi-ladder/internal/model"
	"github.com/Shivanand-hulikatti/ppi-ladder/internal/repository"
)

// UserService serves user profiles and apply lists.
type UserService struct {
	store repository.Store
}

// NewUserService constructs a UserService.
func NewUserService(store repository.Store) *UserService {
	return &UserService{store: store}
}

const maxNicknameLen = 30

// GetUser returns the OwnerView when viewerID is the user themself and the
// PublicView otherwise.
func (s *UserService) GetUser(ctx context.Context, id, viewerID string) (model.UserView, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if viewerID != "" && viewerID == u.ID {
		return ownerView(u), nil
	}
	return publicView(u), nil
}

func publicView(u *model.User) model.PublicView {
	return model.PublicView{
		ID:                u.ID,
		Nickname:          u.Nickname,
		ProfilePictureURL: u.ProfilePictureURL,
		PPI:               u.PPI,
		TicketBalance:     u.TicketBalance,
		CreatedAt:         u.CreatedAt,
	}
}

func ownerView(u *model.User) model.OwnerView {
	return model.OwnerView{PublicView: publicView(u), Email: u.Email}
}

// UpdateProfile edits the caller's own nickname and profile picture and
// returns the updated OwnerView. Nicknames are trimmed and must be unique.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, upd model.ProfileUpdate) (model.OwnerView, error) {
	if upd.Nickname == nil && upd.ProfilePictureURL == nil {
		return model.OwnerView{}, fmt.Errorf("%w: nothing to update", ErrInvalidRequest)
	}
	if upd.Nickname != nil {
		nick := strings.TrimSpace(*upd.Nickname)
		if nick == "" || utf8.RuneCountInString(nick) > maxNicknameLen {
			return model.OwnerView{}, fmt.Errorf("%w: nickname must be 1 to %d characters", ErrInvalidRequest, maxNicknameLen)
		}
		upd.Nickname = &nick
	}
	if upd.ProfilePictureURL != nil {
		pic := strings.TrimSpace(*upd.ProfilePictureURL)
		if pic != "" {
			if u, err := url.Parse(pic); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return model.OwnerView{}, fmt.Errorf("%w: profile picture must be an http(s) URL", ErrInvalidRequest)
			}
		}
		upd.ProfilePictureURL = &pic
	}

	u, err := s.store.UpdateUserProfile(ctx, userID, upd)
	if err != nil {
		return model.OwnerView{}, err
	}
	return ownerView(u), nil
}

// SeedUsers registers users that do not exist yet, starting them at
// DefaultPPI when no rating is given. Existing users are left untouched.
// It returns how many users were created.
func (s *UserService) SeedUsers(ctx context.Context, users []model.User) (int, error) {
	created := 0
	for _, u := range users {
		u.ID = strings.TrimSpace(u.ID)
		u.Nickname = strings.TrimSpace(u.Nickname)
		u.Email = strings.TrimSpace(u.Email)
		if u.ID == "" || u.Nickname == "" || u.Email == "" {
			return created, fmt.Errorf("%w: seed user needs id, nickname and email", ErrInvalidRequest)
		}
		if u.TicketBalance < 0 {
			return created, fmt.Errorf("%w: seed user %s has negative tickets", ErrInvalidRequest, u.ID)
		}
		if u.PPI == 0 {
			u.PPI = model.DefaultPPI
		}
		ok, err := s.store.EnsureUser(ctx, u)
		if err != nil {
			return created, fmt.Errorf("seed user %s: %w", u.ID, err)
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// ApplyList returns every game the user applied to.
func (s *UserService) ApplyList(ctx context.Context, userID string) ([]model.Application, error) {
	apps, err := s.store.ListUserApplications(ctx, userID)
	if err != nil {
		return nil, err
	}
	if apps == nil {
		apps = []model.Application{}
	}
	return apps, nil
}
