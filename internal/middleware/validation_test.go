package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryParamValidator(t *testing.T) {
	v := NewQueryParamValidator(nil, nil)

	tests := []struct {
		name   string
		query  string
		check  func(w http.ResponseWriter, r *http.Request) (any, bool)
		want   any
		wantOK bool
	}{
		{
			name:  "int default",
			query: "",
			check: func(w http.ResponseWriter, r *http.Request) (any, bool) {
				return v.ValidateInt(w, r, "limit", 1, 100, 25)
			},
			want: 25, wantOK: true,
		},
		{
			name:  "int in range",
			query: "limit=10",
			check: func(w http.ResponseWriter, r *http.Request) (any, bool) {
				return v.ValidateInt(w, r, "limit", 1, 100, 25)
			},
			want: 10, wantOK: true,
		},
		{
			name:  "int out of range",
			query: "limit=1000",
			check: func(w http.ResponseWriter, r *http.Request) (any, bool) {
				return v.ValidateInt(w, r, "limit", 1, 100, 25)
			},
			want: 0, wantOK: false,
		},
		{
			name:  "int not a number",
			query: "limit=ten",
			check: func(w http.ResponseWriter, r *http.Request) (any, bool) {
				return v.ValidateInt(w, r, "limit", 1, 100, 25)
			},
			want: 0, wantOK: false,
		},
		{
			name:  "enum allowed",
			query: "group_by=income_level",
			check: func(w http.ResponseWriter, r *http.Request) (any, bool) {
				return v.ValidateEnum(w, r, "group_by", []string{"overall", "income_level"}, "overall")
			},
			want: "income_level", wantOK: true,
		},
		{
			name:  "enum rejected",
			query: "group_by=planet",
			check: func(w http.ResponseWriter, r *http.Request) (any, bool) {
				return v.ValidateEnum(w, r, "group_by", []string{"overall", "income_level"}, "overall")
			},
			want: "", wantOK: false,
		},
		{
			name:  "country codes",
			query: "countries=KEN,%20UGA",
			check: func(w http.ResponseWriter, r *http.Request) (any, bool) {
				return v.ValidateCountryCodes(w, r, "countries")
			},
			want: []string{"KEN", "UGA"}, wantOK: true,
		},
		{
			name:  "lower case code",
			query: "countries=KEN,uga",
			check: func(w http.ResponseWriter, r *http.Request) (any, bool) {
				return v.ValidateCountryCodes(w, r, "countries")
			},
			want: []string(nil), wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			got, ok := tt.check(rec, req)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				assert.Equal(t, http.StatusBadRequest, rec.Code)
			}
		})
	}
}
