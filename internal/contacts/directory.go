package contacts

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/stanstork/safeme-sync/internal/models"
	"github.com/stanstork/safeme-sync/internal/repository"
)

// Directory serves a user's emergency contacts, falling back to the last
// copy fetched when the remote database cannot be reached.
type Directory struct {
	repo   repository.ContactRepository
	cache  *gocache.Cache
	logger zerolog.Logger
}

func NewDirectory(repo repository.ContactRepository, ttl time.Duration, logger zerolog.Logger) *Directory {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Directory{
		repo:   repo,
		cache:  gocache.New(ttl, ttl/2),
		logger: logger.With().Str("component", "contact_directory").Logger(),
	}
}

// List returns the user's contacts in notification order.
func (d *Directory) List(ctx context.Context, userID string) ([]models.EmergencyContact, error) {
	contacts, err := d.repo.ListByUser(ctx, userID)
	if err == nil {
		models.SortByPriority(contacts)
		d.cache.SetDefault(userID, contacts)
		return cloneContacts(contacts), nil
	}

	if cached, ok := d.cache.Get(userID); ok {
		d.logger.Warn().Err(err).Str("user_id", userID).Msg("Using cached emergency contacts")
		return cloneContacts(cached.([]models.EmergencyContact)), nil
	}
	return nil, err
}

func (d *Directory) Add(ctx context.Context, contact models.EmergencyContact) (models.EmergencyContact, error) {
	created, err := d.repo.Create(ctx, contact)
	if err != nil {
		return models.EmergencyContact{}, err
	}
	d.cache.Delete(contact.UserID)
	return created, nil
}

func (d *Directory) Remove(ctx context.Context, userID, contactID string) error {
	if err := d.repo.Delete(ctx, userID, contactID); err != nil {
		return err
	}
	d.cache.Delete(userID)
	return nil
}

func cloneContacts(in []models.EmergencyContact) []models.EmergencyContact {
	out := make([]models.EmergencyContact, len(in))
	copy(out, in)
	return out
}
