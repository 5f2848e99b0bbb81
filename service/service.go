// Package service applies the favorites business rules on top of the store:
// per-user quota, the duplicate pre-check, conflict translation, movieId
// immutability and not-found escalation.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/jacentio/favorites/favorite"
	"github.com/jacentio/favorites/store"
)

// DefaultMaxPerUser is the default soft cap on favorites per user.
const DefaultMaxPerUser = 1000

const (
	msgNotFound       = "favorite not found"
	msgMovieRequired  = "movieId is required"
	msgDuplicate      = "movie already in favorites"
	msgMovieImmutable = "movieId cannot be updated"
)

// Repository is the persistence the service needs. *store.Store satisfies it.
type Repository interface {
	ListByUser(ctx context.Context, userID string, opts favorite.ListOptions) (favorite.Page, error)
	GetByID(ctx context.Context, userID, id string) (favorite.Favorite, bool, error)
	ExistsByMovieID(ctx context.Context, userID, movieID string) (bool, error)
	Create(ctx context.Context, userID, id string, now time.Time, in favorite.CreateInput) (favorite.Favorite, error)
	Update(ctx context.Context, userID, id string, now time.Time, patch favorite.Patch) (favorite.Favorite, bool, error)
	Delete(ctx context.Context, userID, id string) (bool, error)
}

// Counter is implemented by repositories that can count a user's favorites.
// The quota is only enforced when the repository is a Counter.
type Counter interface {
	CountByUser(ctx context.Context, userID string) (int, error)
}

// Config holds the service settings. Zero values select the defaults.
type Config struct {
	MaxPerUser int
	Now        func() time.Time
	NewID      func() string
}

func (c *Config) validate() {
	if c.MaxPerUser <= 0 {
		c.MaxPerUser = DefaultMaxPerUser
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewID == nil {
		c.NewID = func() string { return ulid.Make().String() }
	}
}

// Service orchestrates favorites operations for a single user at a time.
type Service struct {
	repo   Repository
	config Config
	logger *zap.Logger
}

// New creates a Service. A nil logger disables logging.
func New(repo Repository, config Config, logger *zap.Logger) *Service {
	config.validate()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		config: config,
		logger: logger,
	}
}

// List returns one page of the user's favorites.
func (s *Service) List(ctx context.Context, userID string, opts favorite.ListOptions) (favorite.Page, error) {
	return s.repo.ListByUser(ctx, userID, opts)
}

// Get returns a favorite or an ErrNotFound failure.
func (s *Service) Get(ctx context.Context, userID, id string) (favorite.Favorite, error) {
	fav, found, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return favorite.Favorite{}, err
	}
	if !found {
		return favorite.Favorite{}, NotFound(msgNotFound)
	}
	return fav, nil
}

// Add creates a favorite. A movie the user already has fails with
// ErrDuplicate whether the pre-check or the transactional write catches it.
func (s *Service) Add(ctx context.Context, userID string, in favorite.CreateInput) (favorite.Favorite, error) {
	if strings.TrimSpace(in.MovieID) == "" {
		return favorite.Favorite{}, Validation(msgMovieRequired)
	}

	if counter, ok := s.repo.(Counter); ok {
		count, err := counter.CountByUser(ctx, userID)
		if err != nil {
			return favorite.Favorite{}, err
		}
		if count >= s.config.MaxPerUser {
			s.logger.Info("favorites quota reached",
				zap.String("userID", userID),
				zap.Int("count", count),
				zap.Int("max", s.config.MaxPerUser),
			)
			return favorite.Favorite{}, Validation(fmt.Sprintf("favorites limit reached (%d)", s.config.MaxPerUser))
		}
	}

	exists, err := s.repo.ExistsByMovieID(ctx, userID, in.MovieID)
	if err != nil {
		return favorite.Favorite{}, err
	}
	if exists {
		return favorite.Favorite{}, Duplicate(msgDuplicate)
	}

	id := s.config.NewID()
	fav, err := s.repo.Create(ctx, userID, id, s.config.Now(), in)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			s.logger.Debug("create lost uniqueness race",
				zap.String("userID", userID),
				zap.String("movieID", in.MovieID),
				zap.String("code", store.ErrorCode(err)),
			)
			return favorite.Favorite{}, Duplicate(msgDuplicate)
		}
		s.logger.Error("failed to create favorite",
			zap.String("userID", userID),
			zap.String("id", id),
			zap.String("code", store.ErrorCode(err)),
			zap.Error(err),
		)
		return favorite.Favorite{}, err
	}
	return fav, nil
}

// Update applies patch to a favorite. Any patch naming movieId is rejected,
// whatever its value.
func (s *Service) Update(ctx context.Context, userID, id string, patch favorite.Patch) (favorite.Favorite, error) {
	if patch.Has(favorite.FieldMovieID) {
		return favorite.Favorite{}, Validation(msgMovieImmutable)
	}

	fav, found, err := s.repo.Update(ctx, userID, id, s.config.Now(), patch)
	if err != nil {
		return favorite.Favorite{}, err
	}
	if !found {
		return favorite.Favorite{}, NotFound(msgNotFound)
	}
	return fav, nil
}

// Remove deletes a favorite or returns an ErrNotFound failure.
func (s *Service) Remove(ctx context.Context, userID, id string) error {
	ok, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return NotFound(msgNotFound)
	}
	return nil
}
