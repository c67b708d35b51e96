package httpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		bodyLen int
		want    Response
	}{
		{"ok", 200, 10, Ok},
		{"empty body wins over 200", 200, 0, NoResponse},
		{"no connection", 0, 0, NoResponse},
		{"unauthorized", 401, 10, Unauthorized},
		{"bad request", 400, 10, BadRequest},
		{"server error", 500, 10, InternalServerError},
		{"unknown code", 418, 10, UnknownResponseCode},
		{"empty body wins over 500", 500, 0, NoResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyStatus(tt.status, tt.bodyLen))
		})
	}
}

func TestResponseString(t *testing.T) {
	assert.Equal(t, "Ok", Ok.String())
	assert.Equal(t, "NoResponse", NoResponse.String())
	assert.Equal(t, "BadRequest", BadRequest.String())
}
