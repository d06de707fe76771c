package image

import (
	"fmt"
	"strings"

	"server/internal/domain"
)

var imageTypeDirectives = map[domain.ImageType]string{
	domain.ImageTypeMain:      "Hero product shot on a pure white background, studio lighting, centered composition.",
	domain.ImageTypeInfo:      "Infographic calling out the key product features with short labels and clean iconography.",
	domain.ImageTypeFeature:   "Close-up highlighting the single most distinctive product feature.",
	domain.ImageTypeLifestyle: "Lifestyle scene showing the product in natural use by its target customer.",
	domain.ImageTypeCompare:   "Comparison chart contrasting this product against generic alternatives.",
	domain.ImageTypeDimension: "Dimension diagram with measurement callouts on a neutral background.",
}

// aspectForType maps each marketing image variant to its marketplace-standard
// aspect ratio.
func aspectForType(t domain.ImageType) string {
	switch t {
	case domain.ImageTypeLifestyle:
		return "4:3"
	case domain.ImageTypeCompare, domain.ImageTypeDimension:
		return "16:9"
	default:
		return "1:1"
	}
}

func buildPrompt(req GenerateRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Product: %s.", req.Title)
	if req.ProductType != "" {
		fmt.Fprintf(&sb, " Category: %s.", req.ProductType)
	}
	if req.Description != "" {
		fmt.Fprintf(&sb, " %s.", strings.TrimSuffix(req.Description, "."))
	}
	if directive, ok := imageTypeDirectives[req.ImageType]; ok {
		sb.WriteString(" " + directive)
	}
	if req.Style != "" {
		fmt.Fprintf(&sb, " Style: %s.", req.Style)
	}
	if req.BrandTone != "" {
		fmt.Fprintf(&sb, " Brand tone: %s.", req.BrandTone)
	}
	return sb.String()
}
