package entity

import "errors"

// Domain errors for the catalog, carts and media library
var (
	ErrItemNotFound     = errors.New("catalog item not found")
	ErrItemInactive     = errors.New("catalog item is not active")
	ErrItemExists       = errors.New("catalog item with this sku already exists")
	ErrMediaNotFound    = errors.New("media asset not found")
	ErrMediaExists      = errors.New("media asset with this ref already exists")
	ErrEmptySKU         = errors.New("sku cannot be empty")
	ErrEmptyItemName    = errors.New("item name cannot be empty")
	ErrNegativePrice    = errors.New("price cannot be negative")
	ErrEmptyRef         = errors.New("media ref cannot be empty")
	ErrUnsupportedMedia = errors.New("unsupported media content type")
	ErrStorageDisabled  = errors.New("media storage is not configured")
)
