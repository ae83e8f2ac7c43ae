package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Position is the current step of the three-step booking flow.
type Position int

const (
	Selection Position = iota + 1
	Details
	Ready
)

func (p Position) String() string {
	switch p {
	case Selection:
		return "SELECTION"
	case Details:
		return "DETAILS"
	case Ready:
		return "READY"
	default:
		return fmt.Sprintf("Position(%d)", int(p))
	}
}

func (p Position) Valid() bool {
	return p >= Selection && p <= Ready
}

// ParsePosition parses the persisted step slot ("1".."3").
func ParsePosition(s string) (Position, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid step %q: %w", s, err)
	}

	p := Position(n)
	if !p.Valid() {
		return 0, fmt.Errorf("step out of range: %d", n)
	}

	return p, nil
}

func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Position) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}

	for _, c := range []Position{Selection, Details, Ready} {
		if c.String() == name {
			*p = c
			return nil
		}
	}

	return fmt.Errorf("unknown position %q", name)
}

const (
	MinQuantity = 1
	MaxQuantity = 5
)

// Price is either a dollar amount or the Free marker.
type Price struct {
	Dollars int
	Free    bool
}

func FreePrice() Price         { return Price{Free: true} }
func Dollars(amount int) Price { return Price{Dollars: amount} }

func (p Price) String() string {
	if p.Free {
		return "Free"
	}
	return fmt.Sprintf("$%d", p.Dollars)
}

func (p Price) MarshalJSON() ([]byte, error) {
	if p.Free {
		return []byte(`"Free"`), nil
	}
	return json.Marshal(p.Dollars)
}

func (p *Price) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if !strings.EqualFold(s, "free") {
			return fmt.Errorf("unknown price marker %q", s)
		}
		*p = FreePrice()
		return nil
	}

	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if n < 0 {
		return errors.New("negative price")
	}

	*p = Dollars(n)
	return nil
}

// TicketTypeOption is one bookable tier and its remaining count.
type TicketTypeOption struct {
	Name      string `json:"type"`
	Price     Price  `json:"price"`
	Remaining int    `json:"remaining"`
}

// Draft is the ticket record accumulated across the wizard steps.
// Quantity is persisted as a decimal string under numberOfTickets.
type Draft struct {
	SelectedType    string `json:"type,omitempty"`
	Quantity        int    `json:"numberOfTickets,string"`
	FullName        string `json:"fullName,omitempty"`
	Email           string `json:"email,omitempty"`
	ProfilePhotoURL string `json:"profilePhoto,omitempty"`
	SpecialRequest  string `json:"message,omitempty"`
}

func EmptyDraft() Draft {
	return Draft{Quantity: MinQuantity}
}

func (d Draft) IsEmpty() bool {
	return d == EmptyDraft()
}

// AttendeeDetails is the full field set submitted on the details step.
type AttendeeDetails struct {
	FullName        string `json:"fullName"`
	Email           string `json:"email"`
	ProfilePhotoURL string `json:"profilePhoto"`
	SpecialRequest  string `json:"message"`
}

// FormCache holds raw, unvalidated details-form text.
type FormCache struct {
	FullName        string `json:"fullName"`
	Email           string `json:"email"`
	ProfilePhotoURL string `json:"profilePhoto"`
	SpecialRequest  string `json:"message"`
}

// Busy reports which asynchronous operations are in flight.
type Busy struct {
	Uploading  bool `json:"uploading"`
	Submitting bool `json:"submitting"`
	Exporting  bool `json:"exporting"`
}

// State is the read model exposed to presentation after every operation.
type State struct {
	Position    Position           `json:"position"`
	Step        int                `json:"step"`
	Draft       Draft              `json:"draft"`
	Form        FormCache          `json:"form"`
	Inventory   []TicketTypeOption `json:"inventory"`
	Busy        Busy               `json:"busy"`
	Persistent  bool               `json:"persistent"`
	SubmitLabel string             `json:"submitLabel"`
}

const (
	TypeRegular = "REGULAR ACCESS"
	TypeVIP     = "VIP ACCESS"
	TypeVVIP    = "VVIP ACCESS"
)

// SubmitLabel is the caption of the details-step submit control.
func SubmitLabel(ticketType string) string {
	switch ticketType {
	case TypeVIP:
		return "Purchase VIP Ticket"
	case TypeVVIP:
		return "Purchase VVIP Ticket"
	default:
		return "Get My Free Ticket"
	}
}
