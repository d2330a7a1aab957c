package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/receipt-ledger/internal/common"
	"github.com/Veraticus/receipt-ledger/internal/model"
)

// GetVendor retrieves a vendor by name.
func (s *SQLiteStorage) GetVendor(ctx context.Context, name string) (*model.Vendor, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	if vendor := s.getCachedVendor(name); vendor != nil {
		return vendor, nil
	}

	vendor, err := s.getVendorTx(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	s.cacheVendor(vendor)
	return vendor, nil
}

func (s *SQLiteStorage) getVendorTx(ctx context.Context, q queryable, name string) (*model.Vendor, error) {
	var vendor model.Vendor
	var address, phone, bizNum sql.NullString

	err := q.QueryRowContext(ctx, `
		SELECT id, name, address, phone, business_number
		FROM vendors
		WHERE name = ?
	`, name).Scan(&vendor.ID, &vendor.Name, &address, &phone, &bizNum)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vendor: %w", err)
	}

	vendor.Address = nullStringPtr(address)
	vendor.Phone = nullStringPtr(phone)
	vendor.BusinessNumber = nullStringPtr(bizNum)
	return &vendor, nil
}

// SaveVendor returns the canonical vendor for vendor.Name, inserting it if
// the name has not been seen. An existing vendor keeps its original details.
func (s *SQLiteStorage) SaveVendor(ctx context.Context, vendor *model.Vendor) (*model.Vendor, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateVendor(vendor); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	saved, err := s.saveVendorTx(ctx, tx, vendor)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit vendor: %w", err)
	}

	s.cacheVendor(saved)
	return saved, nil
}

// saveVendorTx does not touch the cache; the surrounding transaction may still roll back.
func (s *SQLiteStorage) saveVendorTx(ctx context.Context, q queryable, vendor *model.Vendor) (*model.Vendor, error) {
	_, err := q.ExecContext(ctx, `
		INSERT INTO vendors (name, address, phone, business_number)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, vendor.Name, vendor.Address, vendor.Phone, vendor.BusinessNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to save vendor: %w", err)
	}

	return s.getVendorTx(ctx, q, vendor.Name)
}

// GetAllVendors retrieves all vendors ordered by name.
func (s *SQLiteStorage) GetAllVendors(ctx context.Context) ([]model.Vendor, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getAllVendorsTx(ctx, s.db)
}

func (s *SQLiteStorage) getAllVendorsTx(ctx context.Context, q queryable) ([]model.Vendor, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, address, phone, business_number
		FROM vendors
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vendors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var vendors []model.Vendor
	for rows.Next() {
		var vendor model.Vendor
		var address, phone, bizNum sql.NullString
		if err := rows.Scan(&vendor.ID, &vendor.Name, &address, &phone, &bizNum); err != nil {
			return nil, fmt.Errorf("failed to scan vendor: %w", err)
		}
		vendor.Address = nullStringPtr(address)
		vendor.Phone = nullStringPtr(phone)
		vendor.BusinessNumber = nullStringPtr(bizNum)
		vendors = append(vendors, vendor)
	}

	return vendors, rows.Err()
}

// getCachedVendor retrieves a vendor from the cache.
func (s *SQLiteStorage) getCachedVendor(name string) *model.Vendor {
	s.cacheMutex.RLock()

	if time.Now().After(s.cacheExpiry) {
		// Upgrade to write lock
		s.cacheMutex.RUnlock()
		s.cacheMutex.Lock()
		defer s.cacheMutex.Unlock()

		// Double-check after acquiring write lock
		if time.Now().After(s.cacheExpiry) {
			s.vendorCache = make(map[string]*model.Vendor)
		}
		return nil
	}

	vendor := s.vendorCache[name]
	s.cacheMutex.RUnlock()
	return vendor
}

// cacheVendor adds a vendor to the cache.
func (s *SQLiteStorage) cacheVendor(vendor *model.Vendor) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	if len(s.vendorCache) == 0 {
		s.cacheExpiry = time.Now().Add(5 * time.Minute)
	}
	s.vendorCache[vendor.Name] = vendor
}

// WarmVendorCache loads all vendors into the cache.
func (s *SQLiteStorage) WarmVendorCache(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	vendors, err := s.GetAllVendors(ctx)
	if err != nil {
		return err
	}

	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	s.vendorCache = make(map[string]*model.Vendor)
	for i := range vendors {
		s.vendorCache[vendors[i].Name] = &vendors[i]
	}

	s.cacheExpiry = time.Now().Add(5 * time.Minute)
	return nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullFloatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

func nullIntPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}
