package campaign

import (
	"context"
	"time"

	"adcampaign-controlplane/pkg/db/option"
	"adcampaign-controlplane/pkg/errutil"
	"adcampaign-controlplane/pkg/repository"

	"gorm.io/gorm"
)

// Store is the campaign persistence shared with the packages that hang work
// off a campaign.
type Store struct {
	db   *gorm.DB
	repo repository.Repository[Campaign]
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, repo: repository.ProvideStore[Campaign](db)}
}

func (s *Store) WithTrx(tx *gorm.DB) *Store {
	return &Store{db: tx, repo: s.repo.WithTrx(tx)}
}

// Get returns the campaign or NotFound.
func (s *Store) Get(ctx context.Context, id int64) (*Campaign, error) {
	c, err := s.repo.FindOne(ctx, nil, option.ByID(id))
	if err != nil {
		return nil, errutil.FromDB("failed to load campaign", err)
	}
	if c == nil {
		return nil, errutil.NotFound("campaign not found", nil)
	}
	return c, nil
}

func (s *Store) Find(ctx context.Context, opts ...option.QueryOption) ([]*Campaign, error) {
	out, err := s.repo.Find(ctx, nil, opts...)
	if err != nil {
		return nil, errutil.FromDB("failed to list campaigns", err)
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, c *Campaign) error {
	return errutil.FromDB("failed to create campaign", s.repo.Create(ctx, c))
}

// UpdateFields writes values unless the campaign reached a terminal state in
// the meantime. It reports whether a row changed.
func (s *Store) UpdateFields(ctx context.Context, id int64, values map[string]any) (bool, error) {
	res := s.db.WithContext(ctx).Model(&Campaign{}).
		Where("id = ? AND status IN ?", id, []Status{StatusNew, StatusInProgress}).
		Updates(values)
	if res.Error != nil {
		return false, errutil.FromDB("failed to update campaign", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Transition moves the campaign from → to only if it is still in from.
// completed_at is set on completion. It reports whether the move happened.
func (s *Store) Transition(ctx context.Context, id int64, from, to Status, now time.Time) (bool, error) {
	values := map[string]any{"status": to, "updated_at": now}
	if to == StatusCompleted {
		values["completed_at"] = now
	}

	res := s.db.WithContext(ctx).Model(&Campaign{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, errutil.FromDB("failed to change campaign status", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	return errutil.FromDB("failed to delete campaign", s.repo.Delete(ctx, id))
}
