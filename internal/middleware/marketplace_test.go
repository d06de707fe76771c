package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubResolver struct {
	code string
	err  error
}

func (s stubResolver) CountryCode(string) (string, error) {
	return s.code, s.err
}

func TestDetectLocale(t *testing.T) {
	cases := []struct {
		name           string
		xLocale        string
		acceptLanguage string
		country        string
		want           string
	}{
		{name: "explicit header wins", xLocale: "de", acceptLanguage: "fr", want: "de"},
		{name: "explicit header regional", xLocale: "en-GB", want: "en-GB"},
		{name: "accept language", acceptLanguage: "ja,en;q=0.8", want: "ja"},
		{name: "accept language quality order", acceptLanguage: "da, es;q=0.9, fr;q=0.4", want: "es"},
		{name: "country fallback", country: "FR", want: "fr"},
		{name: "unknown country uses default", country: "BR", want: "en-US"},
		{name: "nothing at all", want: "en-US"},
		{name: "unsupported tag falls through to country", xLocale: "zz-ZZ", country: "JP", want: "ja"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.xLocale != "" {
				r.Header.Set("X-Locale", tc.xLocale)
			}
			if tc.acceptLanguage != "" {
				r.Header.Set("Accept-Language", tc.acceptLanguage)
			}
			if got := detectLocale(r, tc.country, "en-US"); got != tc.want {
				t.Fatalf("detectLocale = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMarketplaceMiddleware(t *testing.T) {
	var gotLocale, gotCountry string
	handler := Marketplace("en-US", stubResolver{code: "DE"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLocale = LocaleFromContext(r.Context())
		gotCountry = CountryFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.7:443"
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if gotCountry != "DE" {
		t.Fatalf("country = %q, want DE", gotCountry)
	}
	if gotLocale != "de" {
		t.Fatalf("locale = %q, want de", gotLocale)
	}
}

func TestMarketplaceResolverError(t *testing.T) {
	var gotLocale string
	handler := Marketplace("en-US", stubResolver{err: errors.New("db closed")})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLocale = LocaleFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if gotLocale != "en-US" {
		t.Fatalf("locale = %q, want fallback en-US", gotLocale)
	}
}

func TestMarketplaceCloudflareHeader(t *testing.T) {
	var gotCountry string
	handler := Marketplace("en-US", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCountry = CountryFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("CF-IPCountry", "jp")
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if gotCountry != "JP" {
		t.Fatalf("country = %q, want JP", gotCountry)
	}
}
