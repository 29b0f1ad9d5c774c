package listing

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vmaximov/sellhub/internal/logging"
	"github.com/vmaximov/sellhub/internal/models"
	"github.com/vmaximov/sellhub/internal/storage"
)

var (
	ErrNotFound      = errors.New("listing not found")
	ErrNotOwner      = errors.New("not the listing owner")
	ErrTooManyImages = errors.New("too many images")
)

// MaxImages bounds the attached image set of one listing.
const MaxImages = 4

// Upload is one inbound image blob before it has a durable name.
type Upload struct {
	Filename string
	Reader   io.Reader
}

// Fields carries listing attributes for create and update. Nil pointers on
// update mean "leave unchanged".
type Fields struct {
	Title        *string
	Description  *string
	Category     *string
	IsNew        *bool
	Price        *float64
	IsNegotiable *bool
	Phone        *string
}

// Store owns listing rows, their image filename sets and view counters. It
// sequences every row/blob mutation so a live row never references a missing
// blob and a referenced blob is never deleted.
type Store struct {
	DB    *gorm.DB
	Blobs storage.Storage
}

// Create stores the blobs first so the inserted row only ever references
// durable filenames. If the insert fails afterwards the stored blobs become
// orphans; that is logged and left to the reconciliation sweep.
func (s *Store) Create(ctx context.Context, ownerID uint, f Fields, uploads []Upload) (*models.Listing, error) {
	if len(uploads) > MaxImages {
		return nil, ErrTooManyImages
	}

	names, err := s.saveUploads(ctx, uploads)
	if err != nil {
		return nil, err
	}

	l := models.Listing{
		OwnerID: ownerID,
		Images:  names,
	}
	applyFields(&l, f)

	if err := s.DB.WithContext(ctx).Create(&l).Error; err != nil {
		logging.FromContext(ctx).Error("listing_insert_failed_blobs_orphaned",
			"owner_id", ownerID, "orphans", names, "error", err)
		return nil, fmt.Errorf("create listing: %w", err)
	}
	return &l, nil
}

// Get increments the view counter and reads the row back in one statement,
// so concurrent readers each observe a distinct, strictly increasing value.
func (s *Store) Get(ctx context.Context, id uint) (*models.Listing, error) {
	var l models.Listing
	res := s.DB.WithContext(ctx).
		Model(&l).
		Clauses(clause.Returning{}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + 1"))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	if l.ID == 0 {
		// driver did not populate the model from RETURNING
		if err := s.DB.WithContext(ctx).First(&l, id).Error; err != nil {
			return nil, err
		}
	}

	var owner models.User
	if err := s.DB.WithContext(ctx).First(&owner, l.OwnerID).Error; err == nil {
		l.Owner = &owner
	}
	return &l, nil
}

// List returns listings ordered by id ascending, with no view side effect.
func (s *Store) List(ctx context.Context, offset, limit int) (int64, []models.Listing, error) {
	var total int64
	if err := s.DB.WithContext(ctx).Model(&models.Listing{}).Count(&total).Error; err != nil {
		return 0, nil, err
	}

	var items []models.Listing
	if err := s.DB.WithContext(ctx).
		Model(&models.Listing{}).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID uint) ([]models.Listing, error) {
	var items []models.Listing
	if err := s.DB.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Update mutates the row of an owned listing. A non-empty uploads set
// supersedes the old images: new blobs are stored, the row is repointed,
// and only then are the old blobs deleted. Empty uploads keep the existing
// image set untouched.
func (s *Store) Update(ctx context.Context, id, requesterID uint, f Fields, uploads []Upload) (*models.Listing, error) {
	l, err := s.ownedListing(ctx, id, requesterID)
	if err != nil {
		return nil, err
	}

	var oldImages []string
	if len(uploads) > 0 {
		if len(uploads) > MaxImages {
			return nil, ErrTooManyImages
		}
		names, err := s.saveUploads(ctx, uploads)
		if err != nil {
			return nil, err
		}
		oldImages = l.Images
		l.Images = names
	}
	applyFields(l, f)

	// views is owned by Get's atomic increment; writing back the value read
	// at the ownership check would clobber concurrent increments
	if err := s.DB.WithContext(ctx).Omit("views").Save(l).Error; err != nil {
		if oldImages != nil {
			logging.FromContext(ctx).Error("listing_update_failed_blobs_orphaned",
				"listing_id", l.ID, "orphans", l.Images, "error", err)
		}
		return nil, fmt.Errorf("update listing: %w", err)
	}

	// old blobs are unreferenced only after the row update above committed
	s.deleteBlobs(ctx, oldImages)
	return l, nil
}

// Delete removes the row first; the row delete is the commit point. Blob
// deletion failures after it leave orphans, never dangling references.
func (s *Store) Delete(ctx context.Context, id, requesterID uint) error {
	l, err := s.ownedListing(ctx, id, requesterID)
	if err != nil {
		return err
	}

	res := s.DB.WithContext(ctx).Delete(&models.Listing{}, l.ID)
	if res.Error != nil {
		return fmt.Errorf("delete listing: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// lost the race to another delete
		return ErrNotFound
	}

	s.deleteBlobs(ctx, l.Images)
	return nil
}

func (s *Store) ownedListing(ctx context.Context, id, requesterID uint) (*models.Listing, error) {
	var l models.Listing
	if err := s.DB.WithContext(ctx).First(&l, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if l.OwnerID != requesterID {
		return nil, ErrNotOwner
	}
	return &l, nil
}

func (s *Store) saveUploads(ctx context.Context, uploads []Upload) ([]string, error) {
	names := make([]string, 0, len(uploads))
	for _, up := range uploads {
		name := storage.NewName(up.Filename)
		if err := s.Blobs.Save(ctx, name, up.Reader); err != nil {
			// blobs stored so far are orphans now
			s.deleteBlobs(ctx, names)
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// deleteBlobs removes no-longer-referenced blobs. Failures here only waste
// storage, so they are logged and swallowed.
func (s *Store) deleteBlobs(ctx context.Context, names []string) {
	for _, name := range names {
		if err := s.Blobs.Delete(ctx, name); err != nil {
			logging.FromContext(ctx).Warn("blob_delete_failed_orphaned", "name", name, "error", err)
		}
	}
}

func applyFields(l *models.Listing, f Fields) {
	if f.Title != nil {
		l.Title = *f.Title
	}
	if f.Description != nil {
		l.Description = *f.Description
	}
	if f.Category != nil {
		l.Category = *f.Category
	}
	if f.IsNew != nil {
		l.IsNew = *f.IsNew
	}
	if f.Price != nil {
		l.Price = *f.Price
	}
	if f.IsNegotiable != nil {
		l.IsNegotiable = *f.IsNegotiable
	}
	if f.Phone != nil {
		l.Phone = *f.Phone
	}
}
