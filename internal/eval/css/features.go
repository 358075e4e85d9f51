package css

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	douceur "github.com/aymerick/douceur/css"
	"github.com/gorilla/css/scanner"
)

const systemUIStack = "system-ui, -apple-system, Segoe UI, Roboto, Ubuntu, Cantarell, Noto Sans, sans-serif"

// Feature rewrites a single declaration. Apply reports false when the
// declaration is left as is.
type Feature struct {
	Name  string
	Stage int
	Apply func(decl *douceur.Declaration) ([]*douceur.Declaration, bool)
}

// Features returns the built-in features in application order
func Features() []Feature {
	return []Feature{
		{Name: "logical-properties-and-values", Stage: 2, Apply: logicalProperties},
		{Name: "place-properties", Stage: 2, Apply: placeProperties},
		{Name: "overflow-property", Stage: 2, Apply: overflowProperty},
		{Name: "opacity-percentage", Stage: 2, Apply: opacityPercentage},
		{Name: "system-ui-font-family", Stage: 2, Apply: systemUIFontFamily},
		{Name: "color-functional-notation", Stage: 2, Apply: colorFunctionalNotation},
		{Name: "hexadecimal-alpha-notation", Stage: 4, Apply: hexadecimalAlphaNotation},
	}
}

// physicalProperties maps logical properties to their left-to-right physical form
var physicalProperties = map[string]string{
	"margin-inline-start":  "margin-left",
	"margin-inline-end":    "margin-right",
	"margin-block-start":   "margin-top",
	"margin-block-end":     "margin-bottom",
	"padding-inline-start": "padding-left",
	"padding-inline-end":   "padding-right",
	"padding-block-start":  "padding-top",
	"padding-block-end":    "padding-bottom",
	"border-inline-start":  "border-left",
	"border-inline-end":    "border-right",
	"border-block-start":   "border-top",
	"border-block-end":     "border-bottom",
	"inset-inline-start":   "left",
	"inset-inline-end":     "right",
	"inset-block-start":    "top",
	"inset-block-end":      "bottom",
	"inline-size":          "width",
	"block-size":           "height",
	"min-inline-size":      "min-width",
	"min-block-size":       "min-height",
	"max-inline-size":      "max-width",
	"max-block-size":       "max-height",
}

func logicalProperties(d *douceur.Declaration) ([]*douceur.Declaration, bool) {
	physical, ok := physicalProperties[strings.ToLower(d.Property)]
	if !ok {
		return nil, false
	}
	return []*douceur.Declaration{withProperty(d, physical, d.Value)}, true
}

func placeProperties(d *douceur.Declaration) ([]*douceur.Declaration, bool) {
	kind, ok := strings.CutPrefix(strings.ToLower(d.Property), "place-")
	if !ok || (kind != "items" && kind != "content" && kind != "self") {
		return nil, false
	}

	fields := strings.Fields(d.Value)
	if len(fields) == 0 || len(fields) > 2 {
		return nil, false
	}

	return []*douceur.Declaration{
		withProperty(d, "align-"+kind, fields[0]),
		withProperty(d, "justify-"+kind, fields[len(fields)-1]),
	}, true
}

func overflowProperty(d *douceur.Declaration) ([]*douceur.Declaration, bool) {
	if strings.ToLower(d.Property) != "overflow" {
		return nil, false
	}

	fields := strings.Fields(d.Value)
	if len(fields) != 2 {
		return nil, false
	}

	return []*douceur.Declaration{
		withProperty(d, "overflow-x", fields[0]),
		withProperty(d, "overflow-y", fields[1]),
	}, true
}

func opacityPercentage(d *douceur.Declaration) ([]*douceur.Declaration, bool) {
	if strings.ToLower(d.Property) != "opacity" {
		return nil, false
	}

	pct, ok := strings.CutSuffix(strings.TrimSpace(d.Value), "%")
	if !ok {
		return nil, false
	}
	f, err := strconv.ParseFloat(pct, 64)
	if err != nil {
		return nil, false
	}

	return []*douceur.Declaration{withProperty(d, d.Property, formatFloat(f/100))}, true
}

func systemUIFontFamily(d *douceur.Declaration) ([]*douceur.Declaration, bool) {
	prop := strings.ToLower(d.Property)
	if prop != "font-family" && prop != "font" {
		return nil, false
	}
	if strings.Contains(d.Value, "-apple-system") {
		return nil, false
	}

	value, changed := mapTokens(d.Value, func(tokens []*scanner.Token, i int) (string, int) {
		if tokens[i].Type == scanner.TokenIdent && strings.EqualFold(tokens[i].Value, "system-ui") {
			return systemUIStack, 1
		}
		return "", 0
	})
	if !changed {
		return nil, false
	}
	return []*douceur.Declaration{withProperty(d, d.Property, value)}, true
}

func colorFunctionalNotation(d *douceur.Declaration) ([]*douceur.Declaration, bool) {
	value, changed := mapTokens(d.Value, legacyColorFunction)
	if !changed {
		return nil, false
	}
	return []*douceur.Declaration{withProperty(d, d.Property, value)}, true
}

// legacyColorFunction rewrites rgb()/hsl() with space separated arguments
// starting at tokens[i] into the comma separated form.
func legacyColorFunction(tokens []*scanner.Token, i int) (string, int) {
	if tokens[i].Type != scanner.TokenFunction {
		return "", 0
	}
	name := strings.ToLower(strings.TrimSuffix(tokens[i].Value, "("))
	if name != "rgb" && name != "rgba" && name != "hsl" && name != "hsla" {
		return "", 0
	}
	base := name[:3]

	var components, alpha []string
	slash := false
	for j := i + 1; j < len(tokens); j++ {
		tok := tokens[j]
		switch {
		case tok.Type == scanner.TokenS || tok.Type == scanner.TokenComment:
			continue
		case tok.Type == scanner.TokenChar && tok.Value == ")":
			if len(components) != 3 || len(alpha) > 1 || (slash && len(alpha) == 0) {
				return "", 0
			}
			if base == "hsl" {
				components[0] = strings.TrimSuffix(strings.ToLower(components[0]), "deg")
			}
			if len(alpha) == 0 {
				return base + "(" + strings.Join(components, ", ") + ")", j - i + 1
			}
			return base + "a(" + strings.Join(components, ", ") + ", " + alphaValue(alpha[0]) + ")", j - i + 1
		case tok.Type == scanner.TokenChar && tok.Value == "/":
			if slash {
				return "", 0
			}
			slash = true
		case tok.Type == scanner.TokenNumber || tok.Type == scanner.TokenPercentage ||
			tok.Type == scanner.TokenDimension:
			if slash {
				alpha = append(alpha, tok.Value)
			} else {
				components = append(components, tok.Value)
			}
		default:
			// commas (already legacy), nested functions and keywords
			return "", 0
		}
	}
	return "", 0
}

func hexadecimalAlphaNotation(d *douceur.Declaration) ([]*douceur.Declaration, bool) {
	value, changed := mapTokens(d.Value, func(tokens []*scanner.Token, i int) (string, int) {
		if tokens[i].Type != scanner.TokenHash {
			return "", 0
		}
		rgba, ok := hexToRGBA(tokens[i].Value)
		if !ok {
			return "", 0
		}
		return rgba, 1
	})
	if !changed {
		return nil, false
	}
	return []*douceur.Declaration{withProperty(d, d.Property, value)}, true
}

// hexToRGBA converts #rgba and #rrggbbaa
func hexToRGBA(hash string) (string, bool) {
	hex := strings.TrimPrefix(hash, "#")
	if len(hex) == 4 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2], hex[3], hex[3]})
	}
	if len(hex) != 8 {
		return "", false
	}

	var channels [4]uint64
	for i := range channels {
		v, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
		if err != nil {
			return "", false
		}
		channels[i] = v
	}

	alpha := math.Round(float64(channels[3])/255*1000) / 1000
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", channels[0], channels[1], channels[2], formatFloat(alpha)), true
}

func alphaValue(v string) string {
	pct, ok := strings.CutSuffix(v, "%")
	if !ok {
		return v
	}
	f, err := strconv.ParseFloat(pct, 64)
	if err != nil {
		return v
	}
	return formatFloat(f / 100)
}

// mapTokens scans value and lets fn replace runs of tokens. fn returns the
// replacement and the number of tokens it consumed, or 0 to keep tokens[i].
func mapTokens(value string, fn func(tokens []*scanner.Token, i int) (string, int)) (string, bool) {
	tokens, ok := tokenize(value)
	if !ok {
		return value, false
	}

	var b strings.Builder
	changed := false
	for i := 0; i < len(tokens); {
		if replacement, n := fn(tokens, i); n > 0 {
			b.WriteString(replacement)
			i += n
			changed = true
			continue
		}
		b.WriteString(tokens[i].Value)
		i++
	}
	return b.String(), changed
}

func withProperty(d *douceur.Declaration, property, value string) *douceur.Declaration {
	return &douceur.Declaration{
		Property:  property,
		Value:     value,
		Important: d.Important,
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(math.Round(f*1e6)/1e6, 'f', -1, 64)
}
