package schema

import (
	"errors"
	"testing"
)

func TestValidateFieldsAcceptsKnownLangs(t *testing.T) {
	for _, lang := range []string{"gcc", "g++", "java", "python"} {
		meta, err := ValidateFields(map[string]string{"lang": lang})
		if err != nil {
			t.Errorf("lang %q: unexpected error %v", lang, err)
			continue
		}
		if meta.Lang != lang {
			t.Errorf("lang %q: got %q", lang, meta.Lang)
		}
	}
}

func TestValidateFieldsRejections(t *testing.T) {
	tests := []struct {
		name       string
		fields     map[string]string
		wantField  string
		wantReason string
	}{
		{
			name:       "missing lang",
			fields:     map[string]string{},
			wantField:  "lang",
			wantReason: "is required",
		},
		{
			name:       "empty lang",
			fields:     map[string]string{"lang": ""},
			wantField:  "lang",
			wantReason: "is required",
		},
		{
			name:       "unsupported lang",
			fields:     map[string]string{"lang": "rust"},
			wantField:  "lang",
			wantReason: "must be one of [gcc g++ java python]",
		},
		{
			name:       "unknown field",
			fields:     map[string]string{"language": "python"},
			wantField:  "language",
			wantReason: "is not allowed",
		},
		{
			name:       "extra field alongside lang",
			fields:     map[string]string{"lang": "python", "team": "blue"},
			wantField:  "team",
			wantReason: "is not allowed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateFields(tt.fields)
			if err == nil {
				t.Fatal("expected error")
			}
			var fieldErr *FieldError
			if !errors.As(err, &fieldErr) {
				t.Fatalf("got %T, want *FieldError", err)
			}
			if fieldErr.Field != tt.wantField {
				t.Errorf("field = %q, want %q", fieldErr.Field, tt.wantField)
			}
			if fieldErr.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", fieldErr.Reason, tt.wantReason)
			}
		})
	}
}
