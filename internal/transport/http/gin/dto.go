package httpgin

import (
	"github.com/kirinyoku/tix-wizard/internal/domain"
	"github.com/kirinyoku/tix-wizard/internal/inventory"
)

type SelectionRequest struct {
	Type     string `json:"type" binding:"required"`
	Quantity int    `json:"quantity" binding:"required"`
}

type DetailsRequest struct {
	FullName     string `json:"fullName"`
	Email        string `json:"email"`
	ProfilePhoto string `json:"profilePhoto"`
	Message      string `json:"message"`
}

func (r DetailsRequest) toDomain() domain.AttendeeDetails {
	return domain.AttendeeDetails{
		FullName:        r.FullName,
		Email:           r.Email,
		ProfilePhotoURL: r.ProfilePhoto,
		SpecialRequest:  r.Message,
	}
}

type FormRequest struct {
	FullName     string `json:"fullName"`
	Email        string `json:"email"`
	ProfilePhoto string `json:"profilePhoto"`
	Message      string `json:"message"`
}

func (r FormRequest) toDomain() domain.FormCache {
	return domain.FormCache{
		FullName:        r.FullName,
		Email:           r.Email,
		ProfilePhotoURL: r.ProfilePhoto,
		SpecialRequest:  r.Message,
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
	// Fields maps a form field to its first validation message.
	Fields       map[string]string `json:"fields,omitempty"`
	PhotoMissing bool              `json:"photoMissing,omitempty"`
}

type PhotoResponse struct {
	URL string `json:"url"`
}

type InventoryItem struct {
	Type          string       `json:"type"`
	Price         domain.Price `json:"price" swaggertype:"string"`
	Remaining     int          `json:"remaining"`
	MaxSelectable int          `json:"maxSelectable"`
	SoldOut       bool         `json:"soldOut"`
}

func inventoryItems(opts []domain.TicketTypeOption) []InventoryItem {
	out := make([]InventoryItem, 0, len(opts))
	for _, o := range opts {
		out = append(out, InventoryItem{
			Type:          o.Name,
			Price:         o.Price,
			Remaining:     o.Remaining,
			MaxSelectable: inventory.MaxSelectable(o.Remaining),
			SoldOut:       o.Remaining <= 0,
		})
	}
	return out
}
