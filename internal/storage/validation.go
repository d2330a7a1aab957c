// Package storage provides the data persistence layer for the receipt ledger.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Veraticus/receipt-ledger/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrInvalidStatus      = errors.New("invalid receipt status")
	ErrInvalidReceipt     = errors.New("invalid receipt")
	ErrInvalidVendor      = errors.New("invalid vendor")
	ErrInvalidChatMessage = errors.New("invalid chat message")
	ErrInvalidIdentifier  = errors.New("invalid identifier")
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateIdentifier guards names that are spliced into SQL text, such as savepoints.
func validateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

// validateReceipt checks the storage invariants of a receipt.
func validateReceipt(receipt *model.Receipt) error {
	if receipt == nil {
		return fmt.Errorf("%w: receipt", ErrNilParameter)
	}
	if !receipt.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, receipt.Status)
	}
	if !receipt.Header.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", ErrInvalidReceipt, receipt.Header.PaymentMethod)
	}
	if receipt.Header.TotalAmount < 0 {
		return fmt.Errorf("%w: negative total amount", ErrInvalidReceipt)
	}
	if receipt.Confidence < 0 || receipt.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidReceipt)
	}
	if receipt.Vendor != nil {
		if err := validateVendor(receipt.Vendor); err != nil {
			return err
		}
	}
	return validateItems(receipt.Items, "items")
}

func validateItems(items []model.LineItem, path string) error {
	for i, item := range items {
		if item.TotalPrice < 0 {
			return fmt.Errorf("%w: %s[%d] has a negative total price", ErrInvalidReceipt, path, i)
		}
		if err := validateItems(item.SubItems, fmt.Sprintf("%s[%d].subItems", path, i)); err != nil {
			return err
		}
	}
	return nil
}

// validateVendor validates a vendor.
func validateVendor(vendor *model.Vendor) error {
	if vendor == nil {
		return fmt.Errorf("%w: vendor", ErrNilParameter)
	}
	if strings.TrimSpace(vendor.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidVendor)
	}
	return nil
}

// validateChatMessage validates a chat message before it is appended.
func validateChatMessage(msg *model.ChatMessage) error {
	if msg == nil {
		return fmt.Errorf("%w: chat message", ErrNilParameter)
	}
	if strings.TrimSpace(msg.SessionID) == "" {
		return fmt.Errorf("%w: missing session ID", ErrInvalidChatMessage)
	}
	switch msg.Role {
	case model.RoleUser, model.RoleAssistant:
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidChatMessage, msg.Role)
	}
	return nil
}
