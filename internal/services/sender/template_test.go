package sender

import (
	"testing"
)

func TestExpandTemplate(t *testing.T) {
	tests := []struct {
		name     string
		template string
		row      map[string]string
		want     string
	}{
		{
			name:     "all placeholders resolved",
			template: "Hi {Name}, your code is {Code}",
			row:      map[string]string{"Name": "Alice", "Code": "42"},
			want:     "Hi Alice, your code is 42",
		},
		{
			name:     "missing column left verbatim",
			template: "Hi {Name}, your code is {Code}",
			row:      map[string]string{"Name": "Alice"},
			want:     "Hi Alice, your code is {Code}",
		},
		{
			name:     "empty value substitutes empty",
			template: "Hi {Name}!",
			row:      map[string]string{"Name": ""},
			want:     "Hi !",
		},
		{
			name:     "no placeholders",
			template: "plain message",
			row:      map[string]string{"Name": "Alice"},
			want:     "plain message",
		},
		{
			name:     "repeated placeholder",
			template: "{Name} {Name}",
			row:      map[string]string{"Name": "Bob"},
			want:     "Bob Bob",
		},
		{
			name:     "nil row",
			template: "Hi {Name}",
			row:      nil,
			want:     "Hi {Name}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandTemplate(tt.template, tt.row); got != tt.want {
				t.Errorf("ExpandTemplate = %q, want %q", got, tt.want)
			}
		})
	}
}
