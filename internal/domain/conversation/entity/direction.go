package entity

import "slices"

// Direction tells whether a message came from the customer or the business side
type Direction string

const (
	DirectionCustomerToPage Direction = "customer_to_page"
	DirectionPageToCustomer Direction = "page_to_customer"
)

// Valid reports whether d is one of the two directions
func (d Direction) Valid() bool {
	return d == DirectionCustomerToPage || d == DirectionPageToCustomer
}

// ClassifyDirection derives message direction from the sender. A message is
// page-to-customer iff the sender is the channel account itself or one of the
// tenant's agent actors; every other sender is the customer.
func ClassifyDirection(senderExternalID, accountExternalID string, agentSenderIDs []string) Direction {
	if senderExternalID != "" && senderExternalID == accountExternalID {
		return DirectionPageToCustomer
	}
	if senderExternalID != "" && slices.Contains(agentSenderIDs, senderExternalID) {
		return DirectionPageToCustomer
	}
	return DirectionCustomerToPage
}
