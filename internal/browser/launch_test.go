package browser

import "testing"

func TestPortFromControlURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    int
		wantErr bool
	}{
		{name: "websocket url", url: "ws://127.0.0.1:9222/devtools/browser/abc", want: 9222},
		{name: "http url", url: "http://localhost:41000", want: 41000},
		{name: "no port", url: "http://localhost/devtools", wantErr: true},
		{name: "garbage", url: "://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := portFromControlURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got port %d", tt.url, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("portFromControlURL(%q): %v", tt.url, err)
			}
			if got != tt.want {
				t.Errorf("port = %d, want %d", got, tt.want)
			}
		})
	}
}
