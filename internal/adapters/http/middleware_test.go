package http

import "testing"

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		path, pattern string
		want          bool
	}{
		{"/v1/location/geocode", "/v1/location/geocode", true},
		{"/v1/sessions/tab-1/location", "/v1/sessions/:id/location", true},
		{"/v1/sessions/tab-1/locate", "/v1/sessions/:id/location", false},
		{"/v1/sessions//location", "/v1/sessions/:id/location", false},
		{"/v1/sessions/tab-1", "/v1/sessions/:id/location", false},
		{"/v1/geocode", "/v1/location/geocode", false},
	}
	for _, tc := range cases {
		if got := matchPattern(tc.path, tc.pattern); got != tc.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", tc.path, tc.pattern, got, tc.want)
		}
	}
}

func TestCacheControlFor(t *testing.T) {
	cases := map[string]string{
		"/v1/health":              "no-cache",
		"/v1/sessions/a/location": "no-store",
		"/v1/zones":               "public, max-age=300",
		"/v1/reverse-geocode":     "public, max-age=3600",
		"/v1/autocomplete":        "private, max-age=60",
		"/v1/stores/nearby":       "public, max-age=60",
		"/v1/zones/coverage":      "public, max-age=30",
		"/graphql":                "",
	}
	for path, want := range cases {
		if got := cacheControlFor(path); got != want {
			t.Errorf("cacheControlFor(%q) = %q, want %q", path, got, want)
		}
	}
}
