package address

import (
	"github.com/google/uuid"
)

type Address struct {
	ID     uuid.UUID
	UserID uint

	ReceiverName string
	Phone        string

	Address1 string
	Address2 *string

	City     string
	Province string
	Postal   string
	Country  string

	IsDefault bool
	IsActive  bool
}

// Snapshot is the copy of an address stored on an order. Later edits to the
// address book do not reach it.
type Snapshot struct {
	ReceiverName string
	Phone        string
	Address1     string
	Address2     *string
	City         string
	Province     string
	Postal       string
	Country      string
}

func (a *Address) Snapshot() Snapshot {
	s := Snapshot{
		ReceiverName: a.ReceiverName,
		Phone:        a.Phone,
		Address1:     a.Address1,
		City:         a.City,
		Province:     a.Province,
		Postal:       a.Postal,
		Country:      a.Country,
	}
	if a.Address2 != nil {
		line := *a.Address2
		s.Address2 = &line
	}
	return s
}
