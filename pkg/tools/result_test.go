package tools

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tombee/referral-agent/pkg/errors"
)

type patientInput struct {
	FirstName string   `json:"first_name" validate:"required"`
	BirthDate string   `json:"birth_date" validate:"required,datetime=2006-01-02"`
	Sex       string   `json:"sex" validate:"required,oneof=Male Female Unknown"`
	Age       int      `json:"age" validate:"gte=0,lte=130"`
	Email     string   `json:"email,omitempty" validate:"omitempty,email"`
	Symptoms  []string `json:"symptoms,omitempty"`
}

func TestDecode(t *testing.T) {
	var in patientInput
	err := Decode(map[string]interface{}{
		"first_name": "Jane",
		"birth_date": "1960-04-12",
		"sex":        "Female",
		"age":        float64(64),
		"symptoms":   []interface{}{"syncope"},
	}, &in)
	require.NoError(t, err)
	assert.Equal(t, "Jane", in.FirstName)
	assert.Equal(t, 64, in.Age)
	assert.Equal(t, []string{"syncope"}, in.Symptoms)
}

func TestDecode_Errors(t *testing.T) {
	base := func() map[string]interface{} {
		return map[string]interface{}{"first_name": "Jane", "birth_date": "1960-04-12", "sex": "Female"}
	}

	tests := []struct {
		name    string
		mutate  func(m map[string]interface{})
		field   string
		message string
	}{
		{"required", func(m map[string]interface{}) { delete(m, "first_name") }, "first_name", "first_name is required"},
		{"date format", func(m map[string]interface{}) { m["birth_date"] = "04/12/1960" }, "birth_date", "birth_date must be a date in 2006-01-02 format"},
		{"oneof", func(m map[string]interface{}) { m["sex"] = "F" }, "sex", "sex must be one of: Male, Female, Unknown"},
		{"email", func(m map[string]interface{}) { m["email"] = "nope" }, "email", "email must be a valid email address"},
		{"range", func(m map[string]interface{}) { m["age"] = float64(200) }, "age", "age must be at most 130"},
		{"type", func(m map[string]interface{}) { m["age"] = "old" }, "age", "age must be of type int"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base()
			tt.mutate(m)
			var in patientInput
			err := Decode(m, &in)
			var ve *apperrors.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
			assert.Equal(t, tt.message, ve.Message)
		})
	}
}

func TestSuccessAndFailure(t *testing.T) {
	ok := Success(map[string]interface{}{"result_count": 2})
	assert.Equal(t, true, ok["success"])
	assert.Equal(t, 2, ok["result_count"])

	up := &apperrors.UpstreamError{Service: "nppes", Message: "NPPES API error: 500", StatusCode: 500}
	fail := Failure(up)
	assert.Equal(t, false, fail["success"])
	assert.Equal(t, "NPPES API error: 500", fail["error"])

	assert.Equal(t, "no slots in 14 days", Failuref("no slots in %d days", 14)["error"])
}
