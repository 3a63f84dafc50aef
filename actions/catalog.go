// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

// Package actions defines the business actions the assistant can perform and
// the backend that carries them out.
package actions

import (
	"github.com/invopop/jsonschema"

	"github.com/sprucehealth/voiceagent/model"
)

const (
	LookupCustomerByPhone = "LOOKUP_CUSTOMER_BY_PHONE"
	CreateCustomer        = "CREATE_CUSTOMER"
	CheckAvailability     = "CHECK_AVAILABILITY"
	ConfirmBooking        = "CONFIRM_BOOKING"
)

// LookupCustomerArgs are the arguments of LOOKUP_CUSTOMER_BY_PHONE
type LookupCustomerArgs struct {
	PhoneNumber string `json:"phone_number,omitempty" jsonschema_description:"Phone number in E.164 format. Defaults to the caller's number."`
}

// CreateCustomerArgs are the arguments of CREATE_CUSTOMER
type CreateCustomerArgs struct {
	Name        string `json:"name" jsonschema_description:"Full name of the customer"`
	PhoneNumber string `json:"phone_number,omitempty" jsonschema_description:"Phone number in E.164 format. Defaults to the caller's number."`
	AddressLine string `json:"address_line" jsonschema_description:"Street address where the work is done"`
	City        string `json:"city" jsonschema_description:"City of the address"`
}

// CheckAvailabilityArgs are the arguments of CHECK_AVAILABILITY
type CheckAvailabilityArgs struct {
	Preference string `json:"preference,omitempty" jsonschema_description:"The caller's preferred day or time, in their own words"`
}

// ConfirmBookingArgs are the arguments of CONFIRM_BOOKING
type ConfirmBookingArgs struct {
	CustomerID string `json:"customer_id,omitempty" jsonschema_description:"Customer identifier. Defaults to the customer found earlier in the call."`
	SlotID     string `json:"slot_id" jsonschema_description:"Identifier of the slot returned by CHECK_AVAILABILITY"`
}

// Schema reflects an argument struct into a JSON schema usable as function
// parameters.
func Schema(args any) *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	schema := reflector.Reflect(args)
	// Function parameters are a bare object schema
	schema.Version = ""
	schema.ID = ""
	return schema
}

// Catalog returns the booking actions offered to the response engine
func Catalog() []model.ActionSpec {
	return []model.ActionSpec{
		{
			Name:        LookupCustomerByPhone,
			Description: "Look up an existing customer by phone number. Call this first in every call.",
			Parameters:  Schema(&LookupCustomerArgs{}),
			ContextArgs: map[string]model.ContextField{
				"phone_number": model.ContextCallerAddress,
			},
		},
		{
			Name:        CreateCustomer,
			Description: "Register a new customer when the lookup found nobody.",
			Parameters:  Schema(&CreateCustomerArgs{}),
			ContextArgs: map[string]model.ContextField{
				"phone_number": model.ContextCallerAddress,
			},
		},
		{
			Name:        CheckAvailability,
			Description: "List free time slots matching the caller's preference.",
			Parameters:  Schema(&CheckAvailabilityArgs{}),
		},
		{
			Name:        ConfirmBooking,
			Description: "Book a slot for the customer. Only call after the caller agreed to the slot.",
			Parameters:  Schema(&ConfirmBookingArgs{}),
			ContextArgs: map[string]model.ContextField{
				"customer_id": model.ContextSubjectID,
			},
		},
	}
}
