package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"golang.org/x/text/language"

	"server/internal/infra/geoip"
)

type localeKey string

const (
	// LocaleKey carries the resolved marketplace locale (BCP 47 tag).
	LocaleKey localeKey = "locale"
	// CountryKey carries the ISO country code resolved from the client IP.
	CountryKey localeKey = "country"
)

// Marketplace locales the generation prompts are tuned for. The first tag is
// the fallback when nothing matches.
var supportedLocales = []language.Tag{
	language.AmericanEnglish,
	language.BritishEnglish,
	language.German,
	language.French,
	language.Italian,
	language.Spanish,
	language.Japanese,
}

var localeMatcher = language.NewMatcher(supportedLocales)

// countryLocale maps marketplace countries to their default listing locale for
// clients that send no language preference at all.
var countryLocale = map[string]string{
	"US": "en-US",
	"CA": "en-US",
	"GB": "en-GB",
	"AU": "en-GB",
	"DE": "de",
	"AT": "de",
	"FR": "fr",
	"IT": "it",
	"ES": "es",
	"MX": "es",
	"JP": "ja",
}

// Marketplace resolves the client's marketplace locale and country and stores
// them on the request context. Precedence: explicit X-Locale header, then
// Accept-Language, then GeoIP country, then the fallback.
func Marketplace(fallback string, resolver geoip.CountryResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			country := resolveCountry(r, resolver)
			locale := detectLocale(r, country, fallback)

			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			if country != "" {
				ctx = context.WithValue(ctx, CountryKey, country)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func detectLocale(r *http.Request, country, fallback string) string {
	if v := strings.TrimSpace(r.Header.Get("X-Locale")); v != "" {
		if tag, err := language.Parse(v); err == nil {
			matched, _, conf := localeMatcher.Match(tag)
			if conf > language.No {
				return canonicalLocale(matched)
			}
		}
	}
	if header := r.Header.Get("Accept-Language"); header != "" {
		if tags, _, err := language.ParseAcceptLanguage(header); err == nil && len(tags) > 0 {
			matched, _, conf := localeMatcher.Match(tags...)
			if conf > language.No {
				return canonicalLocale(matched)
			}
		}
	}
	if loc, ok := countryLocale[country]; ok {
		return loc
	}
	if fallback != "" {
		return fallback
	}
	return canonicalLocale(supportedLocales[0])
}

// canonicalLocale renders the matcher's pick as the supported tag string. The
// matcher may return a tag with an inferred region extension; strip it back to
// the closest supported form.
func canonicalLocale(tag language.Tag) string {
	for _, s := range supportedLocales {
		if s == tag {
			return s.String()
		}
	}
	base, _ := tag.Base()
	for _, s := range supportedLocales {
		if b, _ := s.Base(); b == base {
			return s.String()
		}
	}
	return supportedLocales[0].String()
}

func resolveCountry(r *http.Request, resolver geoip.CountryResolver) string {
	if v := strings.TrimSpace(r.Header.Get("CF-IPCountry")); v != "" && v != "XX" {
		return strings.ToUpper(v)
	}
	if resolver == nil {
		return ""
	}
	code, err := resolver.CountryCode(ClientIP(r))
	if err != nil {
		return ""
	}
	return code
}

// ClientIP extracts the originating client IP, honoring X-Forwarded-For set
// by the edge proxy.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// LocaleFromContext returns the resolved locale, or empty when the middleware
// did not run.
func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok {
		return v
	}
	return ""
}

// CountryFromContext returns the resolved ISO country code.
func CountryFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CountryKey).(string); ok {
		return v
	}
	return ""
}
