package detection

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// NormalizeStage is one rewrite in the merchant cleanup chain. Apply
// receives the previous stage's output and the raw description. A stage
// returning done=true ends the chain with its output.
type NormalizeStage struct {
	Name  string
	Apply func(s, original string) (out string, done bool)
}

// Normalizer turns raw bank descriptors into short merchant labels.
// Stages run in order and every stage is a pure function of its inputs.
type Normalizer struct {
	stages []NormalizeStage
}

// NewNormalizer builds a normalizer from an explicit stage list.
func NewNormalizer(stages ...NormalizeStage) *Normalizer {
	return &Normalizer{stages: stages}
}

// DefaultNormalizer returns the standard chain: uppercase, strip payment
// rail prefixes, pick a path segment, fall back to leading tokens.
func DefaultNormalizer() *Normalizer {
	return NewNormalizer(
		UppercaseStage(),
		StripRailPrefixStage(),
		PathSegmentStage(),
		TokenFallbackStage(),
	)
}

// Normalize cleans one raw description. The result is uppercase and trimmed.
func (n *Normalizer) Normalize(raw string) string {
	s := raw
	for _, stage := range n.stages {
		var done bool
		s, done = stage.Apply(s, raw)
		if done {
			break
		}
	}
	return strings.TrimSpace(s)
}

// UppercaseStage uppercases and collapses whitespace.
func UppercaseStage() NormalizeStage {
	return NormalizeStage{
		Name: "uppercase",
		Apply: func(s, _ string) (string, bool) {
			return upperCollapsed(s), false
		},
	}
}

var railPrefix = regexp.MustCompile(
	`\b(?:UPI|IMPS|NEFT|RTGS|NACH|ACH|ECS|POS|BIL|BILLPAY|ONL|INF|MMT|TPT|TRF|ECOM|VISA|` +
		`ATM WDL|ATW|NWD|DEBIT CARD|CASH DEP|WITHDRAWAL|DEPOSIT|` +
		`TRANSFER TO|TRANSFER FROM|TO TRANSFER|BY TRANSFER)` +
		`(?:[\s/:\-]+(?:DR|CR|P2M|P2A|TO|FROM|PUR|PURCHASE|REF))*[\s/:\-]+`)

// StripRailPrefixStage drops payment-rail and transfer markers, keeping the
// text after the last marker. Input that would become empty is kept as is.
func StripRailPrefixStage() NormalizeStage {
	return NormalizeStage{
		Name: "strip_rail_prefix",
		Apply: func(s, _ string) (string, bool) {
			matches := railPrefix.FindAllStringIndex(s, -1)
			if len(matches) == 0 {
				return s, false
			}
			rest := strings.TrimSpace(s[matches[len(matches)-1][1]:])
			if rest == "" {
				return s, false
			}
			return rest, false
		},
	}
}

var (
	ifscCode = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)

	// Bank and UPI handle codes that appear as standalone path segments.
	bankCodes = map[string]bool{
		"YBL": true, "IBL": true, "AXL": true, "APL": true, "UPI": true,
		"OKAXIS": true, "OKHDFCBANK": true, "OKICICI": true, "OKSBI": true,
		"PAYTM": true, "HDFC": true, "HDFCBANK": true, "ICIC": true, "ICICI": true,
		"SBIN": true, "SBI": true, "UTIB": true, "AXIS": true, "KKBK": true,
		"KOTAK": true, "YESB": true, "PUNB": true, "BARB": true, "CNRB": true,
		"IDIB": true, "INDB": true, "IDFB": true, "PAYMENT": true, "COLLECT": true,
	}
)

// PathSegmentStage handles descriptors delimited by / | or \. It strips
// @handle suffixes and returns the first segment longer than three
// characters that is not numeric and not a bank routing code.
func PathSegmentStage() NormalizeStage {
	return NormalizeStage{
		Name: "path_segment",
		Apply: func(s, _ string) (string, bool) {
			if !strings.ContainsAny(s, `/|\`) {
				return s, false
			}
			segments := strings.FieldsFunc(s, func(r rune) bool {
				return r == '/' || r == '|' || r == '\\'
			})
			for _, seg := range segments {
				if at := strings.IndexByte(seg, '@'); at >= 0 {
					seg = seg[:at]
				}
				seg = strings.TrimSpace(seg)
				if utf8.RuneCountInString(seg) <= 3 || isNumeric(seg) {
					continue
				}
				if bankCodes[seg] || ifscCode.MatchString(seg) {
					continue
				}
				return seg, true
			}
			return s, false
		},
	}
}

// TokenFallbackStage drops long numeric tokens (references, account numbers)
// and UPI handles, then keeps the first three remaining tokens. With nothing
// left it returns the first 50 characters of the uppercased raw description.
func TokenFallbackStage() NormalizeStage {
	return NormalizeStage{
		Name: "token_fallback",
		Apply: func(s, original string) (string, bool) {
			tokens := strings.FieldsFunc(s, func(r rune) bool {
				return unicode.IsSpace(r) || r == '/' || r == '|' || r == '\\'
			})
			kept := make([]string, 0, 3)
			for _, tok := range tokens {
				tok = stripHandle(tok)
				if tok == "" || (isNumeric(tok) && len(tok) > 8) {
					continue
				}
				kept = append(kept, tok)
				if len(kept) == 3 {
					break
				}
			}
			if len(kept) > 0 {
				return strings.Join(kept, " "), true
			}
			return truncateRunes(upperCollapsed(original), 50), true
		},
	}
}

// stripHandle cuts a token at the start of its user@bank handle. A token
// that is nothing but a handle keeps the user part.
func stripHandle(tok string) string {
	at := strings.IndexByte(tok, '@')
	if at < 0 {
		return tok
	}
	user := tok[:at]
	sep := strings.LastIndexAny(user, "-:")
	if sep < 0 {
		return user
	}
	if prefix := strings.TrimRight(user[:sep], "-:"); prefix != "" {
		return prefix
	}
	return user[sep+1:]
}

func upperCollapsed(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
