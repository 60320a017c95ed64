// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

package validation

import (
	"strings"
	"testing"
)

type recommendRequest struct {
	Query string `validate:"required,min=1,max=500"`
	Limit int    `validate:"min=0,max=50"`
}

func TestValidateStruct_Valid(t *testing.T) {
	req := recommendRequest{Query: "spicy noodle soup", Limit: 5}
	if verr := ValidateStruct(&req); verr != nil {
		t.Errorf("ValidateStruct() = %v, want nil", verr)
	}
}

func TestValidateStruct_SingleFieldError(t *testing.T) {
	req := recommendRequest{Query: "", Limit: 5}

	verr := ValidateStruct(&req)
	if verr == nil {
		t.Fatal("ValidateStruct() = nil, want error for empty query")
	}
	if len(verr.Errors()) != 1 {
		t.Fatalf("Errors() has %d entries, want 1", len(verr.Errors()))
	}

	apiErr := verr.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q, want VALIDATION_ERROR", apiErr.Code)
	}
	if apiErr.Details["field"] != "Query" {
		t.Errorf("Details[field] = %v, want Query", apiErr.Details["field"])
	}
	if !strings.Contains(apiErr.Message, "Query is required") {
		t.Errorf("Message = %q, want required message", apiErr.Message)
	}
}

func TestValidateStruct_MultipleFieldErrors(t *testing.T) {
	req := recommendRequest{Query: "", Limit: 500}

	verr := ValidateStruct(&req)
	if verr == nil {
		t.Fatal("ValidateStruct() = nil, want errors")
	}
	if len(verr.Errors()) != 2 {
		t.Fatalf("Errors() has %d entries, want 2", len(verr.Errors()))
	}

	apiErr := verr.ToAPIError()
	fields, ok := apiErr.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 2 {
		t.Errorf("Details[fields] = %v, want two field entries", apiErr.Details["fields"])
	}
}

func TestTranslateMinMaxMessages(t *testing.T) {
	tests := []struct {
		name string
		req  recommendRequest
		want string
	}{
		{
			name: "numeric max",
			req:  recommendRequest{Query: "ok", Limit: 99},
			want: "Limit must be at most 50",
		},
		{
			name: "string max",
			req:  recommendRequest{Query: strings.Repeat("x", 501), Limit: 1},
			want: "Query must be at most 500 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateStruct(&tt.req)
			if verr == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			if got := verr.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}
