package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyDirection(t *testing.T) {
	agents := []string{"admin-actor", "agent-7"}

	tests := []struct {
		name   string
		sender string
		want   Direction
	}{
		{"page itself", "page-1", DirectionPageToCustomer},
		{"known agent", "agent-7", DirectionPageToCustomer},
		{"customer", "cust-42", DirectionCustomerToPage},
		{"empty sender", "", DirectionCustomerToPage},
		{"case differs", "PAGE-1", DirectionCustomerToPage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyDirection(tt.sender, "page-1", agents))
		})
	}
}

func TestClassifyDirectionIsTotal(t *testing.T) {
	senders := []string{"page-1", "x", "", "agent", "page-1 ", "0"}
	for _, s := range senders {
		d := ClassifyDirection(s, "page-1", []string{"agent"})
		assert.True(t, d.Valid(), s)
		assert.Equal(t, s == "page-1" || s == "agent", d == DirectionPageToCustomer, s)
	}
}

func TestClassifyDirectionEmptyAccount(t *testing.T) {
	// a blank account id must not turn blank senders into the page
	assert.Equal(t, DirectionCustomerToPage, ClassifyDirection("", "", nil))
}
