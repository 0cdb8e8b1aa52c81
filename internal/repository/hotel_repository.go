package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/habeshastay/booking-engine/internal/model"
)

// HotelRepo provides read access to the catalog's hotels table.  The
// booking core never mutates hotels; it only checks existence and the
// active flag before accepting a booking.
type HotelRepo struct {
    db *sql.DB
}

// NewHotelRepo returns a new HotelRepo bound to the given database.
func NewHotelRepo(db *sql.DB) *HotelRepo { return &HotelRepo{db: db} }

// GetActiveTx loads a hotel by ID within a transaction and verifies that
// it is active.  Missing or inactive hotels both surface as
// ErrHotelNotFound so the response does not leak which case occurred.
func (r *HotelRepo) GetActiveTx(ctx context.Context, tx *sql.Tx, hotelID uint64) (*model.Hotel, error) {
    const q = `SELECT id, name, city, is_active, created_at FROM hotels WHERE id = ?`
    var h model.Hotel
    err := tx.QueryRowContext(ctx, q, hotelID).Scan(&h.ID, &h.Name, &h.City, &h.IsActive, &h.CreatedAt)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrHotelNotFound
        }
        return nil, err
    }
    if !h.IsActive {
        return nil, ErrHotelNotFound
    }
    return &h, nil
}

// GetByID loads a hotel outside any transaction for read-only projections.
func (r *HotelRepo) GetByID(ctx context.Context, hotelID uint64) (*model.Hotel, error) {
    const q = `SELECT id, name, city, is_active, created_at FROM hotels WHERE id = ?`
    var h model.Hotel
    err := r.db.QueryRowContext(ctx, q, hotelID).Scan(&h.ID, &h.Name, &h.City, &h.IsActive, &h.CreatedAt)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrHotelNotFound
        }
        return nil, err
    }
    return &h, nil
}
