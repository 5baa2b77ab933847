// Package services contains stateless domain services for the item bounded context.
// Domain services enforce business rules that operate purely on domain types
// and have zero external dependencies beyond stdlib and the domain layer.
package services

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	itemdomain "github.com/ghuser/inventorycatalog/services/item/domain"
	"github.com/ghuser/inventorycatalog/services/item/domain/models"
)

// MaxDescriptionLength is the longest description, in runes, an item may carry.
const MaxDescriptionLength = 4096

// ValidateName enforces business rules for ItemName beyond the structural
// constraints enforced by the ItemName constructor (non-blank, <= 255 runes).
// It applies to new names on both Register and Update.
//
// Business rules:
//   - Must not be only whitespace characters
//   - No control characters (Unicode category Cc)
//
// Errors wrap ErrInvalidItemName.
func ValidateName(name models.ItemName) error {
	s := name.String()

	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: must not be only whitespace", itemdomain.ErrInvalidItemName)
	}

	for _, r := range s {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: must not contain control characters", itemdomain.ErrInvalidItemName)
		}
	}

	return nil
}

// ValidateDescription caps the description at MaxDescriptionLength runes.
// Errors wrap ErrInvalidDescription.
func ValidateDescription(description string) error {
	if n := utf8.RuneCountInString(description); n > MaxDescriptionLength {
		return fmt.Errorf("%w: %d characters exceeds %d", itemdomain.ErrInvalidDescription, n, MaxDescriptionLength)
	}
	return nil
}

// ValidateUpdate checks the fields an update supplied, after it has been
// applied to item. Fields the update left alone are not re-checked.
func ValidateUpdate(item *models.Item, name, description models.Optional[string]) error {
	if _, ok := name.Get(); ok {
		if err := ValidateName(item.Name); err != nil {
			return err
		}
	}
	if _, ok := description.Get(); ok {
		return ValidateDescription(item.Description)
	}
	return nil
}

// ValidatePhotoRef checks that a stored photo name is a bare file name that
// cannot escape the photo directory.
func ValidatePhotoRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("photo reference must not be empty")
	}
	if ref == "." || ref == ".." || strings.ContainsAny(ref, `/\`) || strings.ContainsRune(ref, 0) {
		return fmt.Errorf("photo reference %q is not a plain file name", ref)
	}
	return nil
}

// ValidateItemForCreation performs cross-field validation on a fully-constructed
// Item aggregate before it is persisted. It assumes the Item was built via
// models.NewItem (so structural constraints are already satisfied) and
// adds business-level checks that span multiple fields.
func ValidateItemForCreation(item *models.Item) error {
	if item == nil {
		return fmt.Errorf("item cannot be nil")
	}

	if err := ValidateName(item.Name); err != nil {
		return err
	}

	if err := ValidateDescription(item.Description); err != nil {
		return err
	}

	if item.ID == "" {
		return fmt.Errorf("id must be set")
	}

	if item.HasPhoto() {
		if err := ValidatePhotoRef(item.PhotoRef); err != nil {
			return fmt.Errorf("invalid photo: %w", err)
		}
	}

	return nil
}
