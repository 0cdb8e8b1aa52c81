package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/habeshastay/booking-engine/internal/model"
)

// GuestRepo manages the guests table.  Guests are minimal identities keyed
// by contact; the booking guard resolves an existing guest or creates a
// lightweight record on the fly inside the booking transaction.
type GuestRepo struct {
    db *sql.DB
}

// NewGuestRepo returns a new GuestRepo bound to the given database.
func NewGuestRepo(db *sql.DB) *GuestRepo { return &GuestRepo{db: db} }

// ResolveTx looks up a guest by contact and creates one when absent.  The
// name of an existing guest is not overwritten; the contact is the
// identity key.  Runs within the provided transaction.
func (r *GuestRepo) ResolveTx(ctx context.Context, tx *sql.Tx, name, contact string) (*model.Guest, error) {
    const sel = `SELECT id, name, contact, created_at FROM guests WHERE contact = ?`
    var g model.Guest
    err := tx.QueryRowContext(ctx, sel, contact).Scan(&g.ID, &g.Name, &g.Contact, &g.CreatedAt)
    if err == nil {
        return &g, nil
    }
    if !errors.Is(err, sql.ErrNoRows) {
        return nil, err
    }
    const ins = `INSERT INTO guests (name, contact) VALUES (?, ?)`
    result, err := tx.ExecContext(ctx, ins, name, contact)
    if err != nil {
        return nil, err
    }
    id, err := result.LastInsertId()
    if err != nil {
        return nil, err
    }
    g = model.Guest{ID: uint64(id), Name: name, Contact: contact}
    return &g, nil
}

// GetByID loads a guest outside any transaction for read-only projections.
func (r *GuestRepo) GetByID(ctx context.Context, guestID uint64) (*model.Guest, error) {
    const q = `SELECT id, name, contact, created_at FROM guests WHERE id = ?`
    var g model.Guest
    err := r.db.QueryRowContext(ctx, q, guestID).Scan(&g.ID, &g.Name, &g.Contact, &g.CreatedAt)
    if err != nil {
        return nil, err
    }
    return &g, nil
}
