package apispec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DocumentIsValid(t *testing.T) {
	doc, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Room Web API", doc.Info.Title)
	assert.NotEmpty(t, doc.Servers)
}

func TestLoad_DocumentsJSONRoutes(t *testing.T) {
	doc, err := Load()
	require.NoError(t, err)

	routes := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/session"},
		{"GET", "/api/v1/listings"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			item := doc.Paths.Find(route.path)
			require.NotNil(t, item)

			op := item.GetOperation(route.method)
			require.NotNil(t, op)
			assert.NotEmpty(t, op.OperationID)
			assert.NotEmpty(t, op.Tags)
		})
	}
}

func TestSchema_Unknown(t *testing.T) {
	_, err := Schema("Booking")
	assert.Error(t, err)
}

func visit(t *testing.T, schemaName, payload string) error {
	t.Helper()

	schema, err := Schema(schemaName)
	require.NoError(t, err)

	var v any
	require.NoError(t, json.Unmarshal([]byte(payload), &v))
	return schema.VisitJSON(v)
}

func TestListingSchema(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"minimal", `{"id":"1","title":"Studio"}`, false},
		{"numeric price", `{"id":"1","title":"Studio","price":150000}`, false},
		{"string price", `{"id":"1","title":"Studio","price":"150000.50"}`, false},
		{"null owner and images", `{"id":"1","title":"Studio","owner":null,"images":null}`, false},
		{"owner without phone", `{"id":"1","title":"Studio","owner":{"email":"a@b.c"}}`, false},
		{"owner with null email", `{"id":"1","title":"Studio","owner":{"email":null,"phone":"+237"}}`, false},
		{"image with null url", `{"id":"1","title":"Studio","images":[{"imageUrl":null}]}`, false},
		{"missing id", `{"title":"Studio"}`, true},
		{"empty id", `{"id":"","title":"Studio"}`, true},
		{"non numeric price", `{"id":"1","title":"Studio","price":"cheap"}`, true},
		{"image without url", `{"id":"1","title":"Studio","images":[{}]}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := visit(t, "Listing", tt.payload)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestListingInputSchema(t *testing.T) {
	valid := `{"title":"T","description":"D","price":0,"currency":"XAF","city":"Douala","district":"Akwa","type":"studio"}`
	assert.NoError(t, visit(t, "ListingInput", valid))

	badCurrency := `{"title":"T","description":"D","price":10,"currency":"GBP","city":"Douala","district":"Akwa","type":"studio"}`
	assert.Error(t, visit(t, "ListingInput", badCurrency))

	negative := `{"title":"T","description":"D","price":-1,"currency":"XAF","city":"Douala","district":"Akwa","type":"studio"}`
	assert.Error(t, visit(t, "ListingInput", negative))
}
