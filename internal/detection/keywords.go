package detection

import "strings"

// CategoryOther is assigned when no category rule matches.
const CategoryOther = "Other"

// CategoryRule maps a category name to the keywords that select it.
type CategoryRule struct {
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// KeywordTables drives category assignment and the subscription
// eligibility filter. Matching is case-insensitive substring search on the
// unified merchant name.
type KeywordTables struct {
	subscription    []string
	nonSubscription []string
	categories      []CategoryRule
}

// NewKeywordTables builds tables from caller-supplied keyword lists.
// Category rules are evaluated in the order given.
func NewKeywordTables(subscription, nonSubscription []string, categories []CategoryRule) KeywordTables {
	kt := KeywordTables{
		subscription:    upperAll(subscription),
		nonSubscription: upperAll(nonSubscription),
	}
	for _, rule := range categories {
		kt.categories = append(kt.categories, CategoryRule{
			Name:     rule.Name,
			Keywords: upperAll(rule.Keywords),
		})
	}
	return kt
}

// DefaultKeywordTables returns the built-in keyword tables.
func DefaultKeywordTables() KeywordTables {
	return NewKeywordTables(defaultSubscriptionKeywords, defaultNonSubscriptionKeywords, defaultCategoryRules)
}

// Category returns the first category whose keywords match name, or Other.
func (k KeywordTables) Category(name string) string {
	upper := strings.ToUpper(name)
	for _, rule := range k.categories {
		if containsAny(upper, rule.Keywords) {
			return rule.Name
		}
	}
	return CategoryOther
}

// IsLikelySubscription reports whether a merchant may be a subscription.
// A subscription keyword always wins; otherwise a non-subscription keyword
// rejects; merchants matching neither list stay eligible.
func (k KeywordTables) IsLikelySubscription(name string) bool {
	upper := strings.ToUpper(name)
	if containsAny(upper, k.subscription) {
		return true
	}
	return !containsAny(upper, k.nonSubscription)
}

// CategoryNames lists the configured categories in evaluation order.
func (k KeywordTables) CategoryNames() []string {
	names := make([]string, 0, len(k.categories))
	for _, rule := range k.categories {
		names = append(names, rule.Name)
	}
	return names
}

// SubscriptionKeywords returns a copy of the subscription list.
func (k KeywordTables) SubscriptionKeywords() []string {
	return append([]string(nil), k.subscription...)
}

// NonSubscriptionKeywords returns a copy of the non-subscription list.
func (k KeywordTables) NonSubscriptionKeywords() []string {
	return append([]string(nil), k.nonSubscription...)
}

// Categories returns a copy of the category rules.
func (k KeywordTables) Categories() []CategoryRule {
	out := make([]CategoryRule, len(k.categories))
	for i, rule := range k.categories {
		out[i] = CategoryRule{Name: rule.Name, Keywords: append([]string(nil), rule.Keywords...)}
	}
	return out
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func upperAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

var defaultCategoryRules = []CategoryRule{
	{Name: "Entertainment", Keywords: []string{
		"NETFLIX", "SPOTIFY", "PRIME VIDEO", "AMAZON PRIME", "HOTSTAR", "DISNEY",
		"YOUTUBE", "ZEE5", "SONYLIV", "JIOCINEMA", "APPLE MUSIC", "GAANA", "WYNK",
		"HBO", "HULU", "AUDIBLE", "BOOKMYSHOW", "STEAM", "PLAYSTATION", "XBOX",
	}},
	{Name: "Software", Keywords: []string{
		"GOOGLE ONE", "GOOGLE STORAGE", "GOOGLE WORKSPACE", "ICLOUD", "APPLE.COM",
		"MICROSOFT", "OFFICE 365", "ADOBE", "DROPBOX", "GITHUB", "NOTION", "CANVA",
		"OPENAI", "CHATGPT", "ZOOM", "SLACK", "AWS", "DIGITALOCEAN", "FIGMA", "LINKEDIN",
	}},
	{Name: "Food & Groceries", Keywords: []string{
		"SWIGGY", "ZOMATO", "BIGBASKET", "BLINKIT", "ZEPTO", "DMART", "GROFERS",
		"INSTAMART", "DUNZO", "GROCERY", "SUPERMARKET", "RESTAURANT", "CAFE",
		"DOMINOS", "MCDONALD", "STARBUCKS",
	}},
	{Name: "Utilities", Keywords: []string{
		"ELECTRICITY", "BESCOM", "TATA POWER", "WATER", "GAS", "AIRTEL", "JIO",
		"VODAFONE", "BSNL", "ACT FIBERNET", "BROADBAND", "RECHARGE", "DTH",
		"TATA PLAY", "MOBILE", "INTERNET",
	}},
	{Name: "Finance", Keywords: []string{
		"INSURANCE", "LIC OF INDIA", "POLICY", "MUTUAL FUND", "LOAN",
		"CREDIT CARD", "ZERODHA", "GROWW", "HDFC LIFE", "ICICI PRU", "BAJAJ FINSERV",
	}},
}

var defaultSubscriptionKeywords = []string{
	"NETFLIX", "SPOTIFY", "PRIME", "HOTSTAR", "DISNEY", "YOUTUBE", "ZEE5", "SONYLIV",
	"JIOCINEMA", "APPLE", "ICLOUD", "GOOGLE", "MICROSOFT", "ADOBE", "DROPBOX",
	"AUDIBLE", "LINKEDIN", "OPENAI", "CHATGPT", "GITHUB", "NOTION", "CANVA",
	"SUBSCRIPTION", "MEMBERSHIP", "RENEWAL", "AUTOPAY", "AUTO PAY", "MANDATE",
	"INSURANCE", "PREMIUM", "GYM", "CULTFIT", "AIRTEL", "JIO", "BROADBAND",
	"RECHARGE", "ELECTRICITY", "TATA PLAY",
}

var defaultNonSubscriptionKeywords = []string{
	"SWIGGY", "ZOMATO", "UBER", "OLA", "RAPIDO", "METRO", "IRCTC", "PETROL", "FUEL",
	"HPCL", "BPCL", "IOCL", "DMART", "BIGBASKET", "BLINKIT", "ZEPTO", "GROCERY",
	"SUPERMARKET", "KIRANA", "MART", "STORE", "RESTAURANT", "CAFE", "HOTEL",
	"FLIPKART", "MYNTRA", "ATM", "CASH", "BAKERY", "MEDICAL", "PHARMACY",
}
